/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the confirmation state machine and the ledger read path via REST.
  Handles HTTP request/response, JSON serialization, and delegates to the
  domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                        Get-or-create by external id
    GET    /api/users/{id}/accounts          List accounts
    GET    /api/users/{id}/transactions      Row-numbered transaction history

  Intents / Actions:
    POST   /api/intents/validate             Deficiency check, no staging
    POST   /api/actions                      Validate + stage a pending action
    GET    /api/actions/{id}                 Inspect a pending action
    POST   /api/actions/{id}/confirm         Apply the staged mutation(s)
    POST   /api/actions/{id}/cancel          Discard without applying
    POST   /api/actions/{id}/preview         Record preview message reference

ERROR HANDLING:
  Domain errors map onto HTTP status codes:
  - 400: Validation deficiencies, malformed input
  - 403: Requester does not own the action
  - 404: User/account/transaction/action not found
  - 409: Action already confirmed/cancelled/expired
  - 410: Confirmation window closed
  - 422: Domain-rule violations (balance, currency, emptiness), clarification
  - 207: Batch with mixed per-operation outcomes
  - 500: Store failures

SECURITY NOTE:
  The requesting user id is taken from the body/query; there is no
  authentication middleware. Ownership checks still apply.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/finbot/ledger-engine/ledger"
	"github.com/finbot/ledger-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *ledger.Engine
	Service   *ledger.ConfirmationService
	Validator *ledger.Validator
	Log       zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(engine *ledger.Engine, service *ledger.ConfirmationService, validator *ledger.Validator, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:    engine,
		Service:   service,
		Validator: validator,
		Log:       log,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// GetOrCreateUser looks a user up by external id, creating one on first
// contact.
// POST /api/users
func (h *Handler) GetOrCreateUser(w http.ResponseWriter, r *http.Request) {
	var req GetOrCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required", nil)
		return
	}

	user, err := h.Engine.GetOrCreateUser(r.Context(), req.ExternalID, req.Timezone)
	if err != nil {
		writeDomainError(w, r, "Failed to resolve user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// ListAccounts returns the user's accounts in creation order.
// GET /api/users/{id}/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	accounts, err := h.Engine.ListAccounts(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListTransactions returns the user's transactions, most recent first, with
// 1-based row numbers.
// GET /api/users/{id}/transactions?from=&to=&type=&limit=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))

	var f ledger.TransactionFilter
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'from' timestamp", err)
			return
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'to' timestamp", err)
			return
		}
		f.To = &t
	}
	if v := q.Get("type"); v != "" {
		f.Type = ledger.TransactionType(v)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid 'limit'", err)
			return
		}
		f.Limit = n
	}

	numbered, err := h.Engine.ListNumberedTransactions(r.Context(), userID, f)
	if err != nil {
		writeDomainError(w, r, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(numbered))
	for i := range numbered {
		dto := toTransactionDTO(&numbered[i].Tx)
		dto.Row = numbered[i].Row
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INTENT VALIDATION
// =============================================================================

// ValidateIntent runs the deficiency checks without staging anything.
// POST /api/intents/validate
func (h *Handler) ValidateIntent(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Validator.Validate(r.Context(), ledger.UserID(req.UserID), req.Intent, req.Fields)
	if err != nil {
		writeDomainError(w, r, "Validation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:         res.Valid(),
		Deficiencies:  res.Deficiencies,
		Clarification: res.Clarification,
	})
}

// =============================================================================
// ACTION LIFECYCLE
// =============================================================================

// StageAction validates the request and creates a pending action.
// POST /api/actions
func (h *Handler) StageAction(w http.ResponseWriter, r *http.Request) {
	var req StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	userID := ledger.UserID(req.UserID)

	var (
		action  *ledger.PendingAction
		preview string
		err     error
	)
	switch {
	case req.Import != nil:
		action, preview, err = h.Service.StageImport(r.Context(), userID, req.Import)
	case len(req.Operations) > 0:
		action, preview, err = h.Service.StageBatch(r.Context(), userID, req.Operations)
	default:
		action, preview, err = h.Service.Stage(r.Context(), userID, req.Intent, req.Fields)
	}
	if err != nil {
		writeDomainError(w, r, "Failed to stage action", err)
		return
	}

	writeJSON(w, http.StatusCreated, StageResponse{
		ActionID:  string(action.ID),
		Kind:      string(action.Kind),
		Preview:   preview,
		ExpiresAt: action.ExpiresAt.Format(time.RFC3339),
	})
}

// GetAction returns a pending action's state and re-rendered preview.
// GET /api/actions/{id}?user_id=
func (h *Handler) GetAction(w http.ResponseWriter, r *http.Request) {
	actionID := ledger.ActionID(chi.URLParam(r, "id"))
	requester := ledger.UserID(r.URL.Query().Get("user_id"))

	action, err := h.Service.GetAction(r.Context(), actionID, requester)
	if err != nil {
		writeDomainError(w, r, "Failed to load action", err)
		return
	}

	dto := ActionDTO{
		ID:        string(action.ID),
		Kind:      string(action.Kind),
		Status:    string(action.Status),
		CreatedAt: action.CreatedAt.Format(time.RFC3339),
		ExpiresAt: action.ExpiresAt.Format(time.RFC3339),
	}
	if payload, err := action.DecodePayload(); err == nil {
		dto.Preview = ledger.BuildPreview(action.Kind, payload)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ConfirmAction applies the staged mutation(s).
// POST /api/actions/{id}/confirm
func (h *Handler) ConfirmAction(w http.ResponseWriter, r *http.Request) {
	actionID := ledger.ActionID(chi.URLParam(r, "id"))

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.Confirm(r.Context(), actionID, ledger.UserID(req.UserID))
	if err != nil {
		var partial *ledger.PartialBatchError
		if errors.As(err, &partial) {
			// Mixed outcomes: report per-operation results with 207.
			resp := toConfirmResponse(result)
			resp.Status = "partial"
			resp.Message = partial.Error()
			writeJSON(w, http.StatusMultiStatus, resp)
			return
		}
		writeDomainError(w, r, "Failed to confirm action", err)
		return
	}

	writeJSON(w, http.StatusOK, toConfirmResponse(result))
}

// CancelAction discards a pending action without applying it.
// POST /api/actions/{id}/cancel
func (h *Handler) CancelAction(w http.ResponseWriter, r *http.Request) {
	actionID := ledger.ActionID(chi.URLParam(r, "id"))

	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Service.Cancel(r.Context(), actionID, ledger.UserID(req.UserID)); err != nil {
		writeDomainError(w, r, "Failed to cancel action", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// SetPreviewMessage records the transport message id of the rendered preview.
// POST /api/actions/{id}/preview
func (h *Handler) SetPreviewMessage(w http.ResponseWriter, r *http.Request) {
	actionID := ledger.ActionID(chi.URLParam(r, "id"))

	var req PreviewMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, err := h.Service.GetAction(r.Context(), actionID, ledger.UserID(req.UserID)); err != nil {
		writeDomainError(w, r, "Failed to load action", err)
		return
	}
	if err := h.Service.SetPreviewMessage(r.Context(), actionID, req.MessageID); err != nil {
		writeDomainError(w, r, "Failed to set preview message", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health is the liveness endpoint.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes. Store failures
// are logged through the request-scoped logger before the 500 goes out.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var ve *ledger.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   message,
			Code:    "validation_failed",
			Details: ve.Deficiencies,
		})
		return
	}

	var ce *ledger.ClarificationError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   message,
			Code:    "clarification_needed",
			Details: ce.Prompt,
		})
		return
	}

	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrForbidden):
		writeError(w, http.StatusForbidden, message, err)
	case errors.Is(err, ledger.ErrActionExpired):
		writeError(w, http.StatusGone, message, err)
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
