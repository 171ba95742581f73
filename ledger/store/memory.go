// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/finbot/ledger-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	users      map[ledger.UserID]ledger.User
	usersByExt map[string]ledger.UserID

	accounts     map[ledger.AccountID]ledger.Account
	accountOrder []ledger.AccountID // creation order, drives resolver matching

	transactions map[ledger.TransactionID]ledger.Transaction
	txOrder      []ledger.TransactionID

	actions map[ledger.ActionID]ledger.PendingAction
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[ledger.UserID]ledger.User),
		usersByExt:   make(map[string]ledger.UserID),
		accounts:     make(map[ledger.AccountID]ledger.Account),
		transactions: make(map[ledger.TransactionID]ledger.Transaction),
		actions:      make(map[ledger.ActionID]ledger.PendingAction),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u *ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUserLocked(u)
}

func (m *Memory) createUserLocked(u *ledger.User) error {
	m.users[u.ID] = cloneUser(*u)
	m.usersByExt[u.ExternalID] = u.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) getUserLocked(id ledger.UserID) (*ledger.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (m *Memory) GetUserByExternalID(_ context.Context, externalID string) (*ledger.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserByExternalIDLocked(externalID)
}

func (m *Memory) getUserByExternalIDLocked(externalID string) (*ledger.User, error) {
	id, ok := m.usersByExt[externalID]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	return m.getUserLocked(id)
}

func (m *Memory) UpdateUser(_ context.Context, u *ledger.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateUserLocked(u)
}

func (m *Memory) updateUserLocked(u *ledger.User) error {
	if _, ok := m.users[u.ID]; !ok {
		return ledger.ErrUserNotFound
	}
	m.users[u.ID] = cloneUser(*u)
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) CreateAccount(_ context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAccountLocked(a)
}

func (m *Memory) createAccountLocked(a *ledger.Account) error {
	m.accounts[a.ID] = *a
	m.accountOrder = append(m.accountOrder, a.ID)
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Memory) getAccountLocked(id ledger.AccountID) (*ledger.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	out := a
	return &out, nil
}

func (m *Memory) ListAccounts(_ context.Context, userID ledger.UserID) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccountsLocked(userID)
}

func (m *Memory) listAccountsLocked(userID ledger.UserID) ([]ledger.Account, error) {
	var out []ledger.Account
	for _, id := range m.accountOrder {
		a, ok := m.accounts[id]
		if ok && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAccount(_ context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccountLocked(a)
}

func (m *Memory) updateAccountLocked(a *ledger.Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return ledger.ErrAccountNotFound
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccountLocked(id)
}

func (m *Memory) deleteAccountLocked(id ledger.AccountID) error {
	if _, ok := m.accounts[id]; !ok {
		return ledger.ErrAccountNotFound
	}
	delete(m.accounts, id)
	m.accountOrder = removeID(m.accountOrder, id)
	return nil
}

func (m *Memory) DeleteAccountsByUser(_ context.Context, userID ledger.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccountsByUserLocked(userID)
}

func (m *Memory) deleteAccountsByUserLocked(userID ledger.UserID) (int, error) {
	count := 0
	kept := m.accountOrder[:0]
	for _, id := range m.accountOrder {
		if a, ok := m.accounts[id]; ok && a.UserID == userID {
			delete(m.accounts, id)
			count++
			continue
		}
		kept = append(kept, id)
	}
	m.accountOrder = kept
	return count, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) CreateTransaction(_ context.Context, t *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTransactionLocked(t)
}

func (m *Memory) createTransactionLocked(t *ledger.Transaction) error {
	m.transactions[t.ID] = cloneTransaction(*t)
	m.txOrder = append(m.txOrder, t.ID)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTransactionLocked(id)
}

func (m *Memory) getTransactionLocked(id ledger.TransactionID) (*ledger.Transaction, error) {
	t, ok := m.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	out := cloneTransaction(t)
	return &out, nil
}

func (m *Memory) ListTransactions(_ context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTransactionsLocked(userID, f)
}

func (m *Memory) listTransactionsLocked(userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	// Walk insertion order in reverse so same-date ties list newest first.
	for i := len(m.txOrder) - 1; i >= 0; i-- {
		t, ok := m.transactions[m.txOrder[i]]
		if !ok || t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.From != nil && t.OperationDate.Before(*f.From) {
			continue
		}
		if f.To != nil && t.OperationDate.After(*f.To) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OperationDate.After(out[j].OperationDate)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, t *ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateTransactionLocked(t)
}

func (m *Memory) updateTransactionLocked(t *ledger.Transaction) error {
	if _, ok := m.transactions[t.ID]; !ok {
		return ledger.ErrTransactionNotFound
	}
	m.transactions[t.ID] = cloneTransaction(*t)
	return nil
}

func (m *Memory) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTransactionLocked(id)
}

func (m *Memory) deleteTransactionLocked(id ledger.TransactionID) error {
	if _, ok := m.transactions[id]; !ok {
		return ledger.ErrTransactionNotFound
	}
	delete(m.transactions, id)
	m.txOrder = removeTxID(m.txOrder, id)
	return nil
}

func (m *Memory) DeleteTransactionsByUser(_ context.Context, userID ledger.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteTransactionsByUserLocked(userID)
}

func (m *Memory) deleteTransactionsByUserLocked(userID ledger.UserID) (int, error) {
	count := 0
	kept := m.txOrder[:0]
	for _, id := range m.txOrder {
		if t, ok := m.transactions[id]; ok && t.UserID == userID {
			delete(m.transactions, id)
			count++
			continue
		}
		kept = append(kept, id)
	}
	m.txOrder = kept
	return count, nil
}

// =============================================================================
// PENDING ACTIONS
// =============================================================================

func (m *Memory) CreatePendingAction(_ context.Context, p *ledger.PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPendingActionLocked(p)
}

func (m *Memory) createPendingActionLocked(p *ledger.PendingAction) error {
	m.actions[p.ID] = clonePendingAction(*p)
	return nil
}

func (m *Memory) GetPendingAction(_ context.Context, id ledger.ActionID) (*ledger.PendingAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPendingActionLocked(id)
}

func (m *Memory) getPendingActionLocked(id ledger.ActionID) (*ledger.PendingAction, error) {
	p, ok := m.actions[id]
	if !ok {
		return nil, ledger.ErrActionNotFound
	}
	out := clonePendingAction(p)
	return &out, nil
}

func (m *Memory) UpdatePendingStatus(_ context.Context, id ledger.ActionID, from, to ledger.PendingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePendingStatusLocked(id, from, to)
}

func (m *Memory) updatePendingStatusLocked(id ledger.ActionID, from, to ledger.PendingStatus) error {
	p, ok := m.actions[id]
	if !ok {
		return ledger.ErrActionNotFound
	}
	if p.Status != from {
		return ledger.ErrAlreadyProcessed
	}
	p.Status = to
	m.actions[id] = p
	return nil
}

func (m *Memory) SetPreviewMessage(_ context.Context, id ledger.ActionID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPreviewMessageLocked(id, messageID)
}

func (m *Memory) setPreviewMessageLocked(id ledger.ActionID, messageID int64) error {
	p, ok := m.actions[id]
	if !ok {
		return ledger.ErrActionNotFound
	}
	p.PreviewMessageID = &messageID
	m.actions[id] = p
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users        map[ledger.UserID]ledger.User
	usersByExt   map[string]ledger.UserID
	accounts     map[ledger.AccountID]ledger.Account
	accountOrder []ledger.AccountID
	transactions map[ledger.TransactionID]ledger.Transaction
	txOrder      []ledger.TransactionID
	actions      map[ledger.ActionID]ledger.PendingAction
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:        make(map[ledger.UserID]ledger.User, len(tm.users)),
		usersByExt:   make(map[string]ledger.UserID, len(tm.usersByExt)),
		accounts:     make(map[ledger.AccountID]ledger.Account, len(tm.accounts)),
		accountOrder: append([]ledger.AccountID{}, tm.accountOrder...),
		transactions: make(map[ledger.TransactionID]ledger.Transaction, len(tm.transactions)),
		txOrder:      append([]ledger.TransactionID{}, tm.txOrder...),
		actions:      make(map[ledger.ActionID]ledger.PendingAction, len(tm.actions)),
	}
	for k, v := range tm.users {
		s.users[k] = cloneUser(v)
	}
	for k, v := range tm.usersByExt {
		s.usersByExt[k] = v
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	for k, v := range tm.transactions {
		s.transactions[k] = cloneTransaction(v)
	}
	for k, v := range tm.actions {
		s.actions[k] = clonePendingAction(v)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.users = s.users
	tm.usersByExt = s.usersByExt
	tm.accounts = s.accounts
	tm.accountOrder = s.accountOrder
	tm.transactions = s.transactions
	tm.txOrder = s.txOrder
	tm.actions = s.actions
}

// txMemoryView delegates to the parent's locked helpers; the WithTx lock is
// already held for the whole scope.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateUser(_ context.Context, u *ledger.User) error {
	return tv.parent.createUserLocked(u)
}

func (tv *txMemoryView) GetUser(_ context.Context, id ledger.UserID) (*ledger.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txMemoryView) GetUserByExternalID(_ context.Context, externalID string) (*ledger.User, error) {
	return tv.parent.getUserByExternalIDLocked(externalID)
}

func (tv *txMemoryView) UpdateUser(_ context.Context, u *ledger.User) error {
	return tv.parent.updateUserLocked(u)
}

func (tv *txMemoryView) CreateAccount(_ context.Context, a *ledger.Account) error {
	return tv.parent.createAccountLocked(a)
}

func (tv *txMemoryView) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return tv.parent.getAccountLocked(id)
}

func (tv *txMemoryView) ListAccounts(_ context.Context, userID ledger.UserID) ([]ledger.Account, error) {
	return tv.parent.listAccountsLocked(userID)
}

func (tv *txMemoryView) UpdateAccount(_ context.Context, a *ledger.Account) error {
	return tv.parent.updateAccountLocked(a)
}

func (tv *txMemoryView) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	return tv.parent.deleteAccountLocked(id)
}

func (tv *txMemoryView) DeleteAccountsByUser(_ context.Context, userID ledger.UserID) (int, error) {
	return tv.parent.deleteAccountsByUserLocked(userID)
}

func (tv *txMemoryView) CreateTransaction(_ context.Context, t *ledger.Transaction) error {
	return tv.parent.createTransactionLocked(t)
}

func (tv *txMemoryView) GetTransaction(_ context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	return tv.parent.getTransactionLocked(id)
}

func (tv *txMemoryView) ListTransactions(_ context.Context, userID ledger.UserID, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return tv.parent.listTransactionsLocked(userID, f)
}

func (tv *txMemoryView) UpdateTransaction(_ context.Context, t *ledger.Transaction) error {
	return tv.parent.updateTransactionLocked(t)
}

func (tv *txMemoryView) DeleteTransaction(_ context.Context, id ledger.TransactionID) error {
	return tv.parent.deleteTransactionLocked(id)
}

func (tv *txMemoryView) DeleteTransactionsByUser(_ context.Context, userID ledger.UserID) (int, error) {
	return tv.parent.deleteTransactionsByUserLocked(userID)
}

func (tv *txMemoryView) CreatePendingAction(_ context.Context, p *ledger.PendingAction) error {
	return tv.parent.createPendingActionLocked(p)
}

func (tv *txMemoryView) GetPendingAction(_ context.Context, id ledger.ActionID) (*ledger.PendingAction, error) {
	return tv.parent.getPendingActionLocked(id)
}

func (tv *txMemoryView) UpdatePendingStatus(_ context.Context, id ledger.ActionID, from, to ledger.PendingStatus) error {
	return tv.parent.updatePendingStatusLocked(id, from, to)
}

func (tv *txMemoryView) SetPreviewMessage(_ context.Context, id ledger.ActionID, messageID int64) error {
	return tv.parent.setPreviewMessageLocked(id, messageID)
}

// =============================================================================
// CLONE HELPERS
// =============================================================================

func cloneUser(u ledger.User) ledger.User {
	if u.DefaultAccountID != nil {
		id := *u.DefaultAccountID
		u.DefaultAccountID = &id
	}
	return u
}

func cloneTransaction(t ledger.Transaction) ledger.Transaction {
	if t.AccountID != nil {
		id := *t.AccountID
		t.AccountID = &id
	}
	if t.FromAccountID != nil {
		id := *t.FromAccountID
		t.FromAccountID = &id
	}
	if t.ToAccountID != nil {
		id := *t.ToAccountID
		t.ToAccountID = &id
	}
	if t.ToAmount != nil {
		amount := *t.ToAmount
		t.ToAmount = &amount
	}
	return t
}

func clonePendingAction(p ledger.PendingAction) ledger.PendingAction {
	p.Payload = append([]byte(nil), p.Payload...)
	if p.PreviewMessageID != nil {
		id := *p.PreviewMessageID
		p.PreviewMessageID = &id
	}
	return p
}

func removeID(ids []ledger.AccountID, id ledger.AccountID) []ledger.AccountID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeTxID(ids []ledger.TransactionID, id ledger.TransactionID) []ledger.TransactionID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
