// Package inventorytest provides an in-memory ledger store for tests.
package inventorytest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/inventory"
)

// Part is the catalog slice the store knows about.
type Part struct {
	ID         int64
	PartNumber string
	Name       string
}

// Store keeps ledger entries and balances in memory. It implements
// inventory.RepositoryPort; Begin hands out transactions for other fakes.
type Store struct {
	mu       sync.Mutex
	parts    map[int64]Part
	entries  []inventory.Movement
	balances map[int64]decimal.Decimal
	nextID   int64

	// FailInsertAfter makes the n-th InsertMovement (1-based) inside a transaction fail.
	FailInsertAfter int
	inserts         int
}

// ErrInjected is returned by the failure hook.
var ErrInjected = errors.New("inventorytest: injected failure")

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{parts: map[int64]Part{}, balances: map[int64]decimal.Decimal{}}
}

// AddPart registers a catalog part.
func (s *Store) AddPart(p Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[p.ID] = p
}

type snapshot struct {
	entries  []inventory.Movement
	balances map[int64]decimal.Decimal
	nextID   int64
}

func (s *Store) snapshot() snapshot {
	b := make(map[int64]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		b[k] = v
	}
	return snapshot{entries: append([]inventory.Movement(nil), s.entries...), balances: b, nextID: s.nextID}
}

func (s *Store) restore(snap snapshot) {
	s.entries = snap.entries
	s.balances = snap.balances
	s.nextID = snap.nextID
}

// Begin locks the store and returns a transaction. finish(true) commits,
// finish(false) restores the state seen at Begin.
func (s *Store) Begin() (inventory.TxRepository, func(commit bool)) {
	s.mu.Lock()
	snap := s.snapshot()
	s.inserts = 0
	return &storeTx{s: s}, func(commit bool) {
		if !commit {
			s.restore(snap)
		}
		s.mu.Unlock()
	}
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	tx, finish := s.Begin()
	err := fn(ctx, tx)
	finish(err == nil)
	return err
}

// PartExists implements inventory.RepositoryPort.
func (s *Store) PartExists(_ context.Context, partID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.parts[partID]
	return ok, nil
}

// StockFor implements inventory.RepositoryPort.
func (s *Store) StockFor(_ context.Context, partID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[partID], nil
}

// StockForAll implements inventory.RepositoryPort.
func (s *Store) StockForAll(_ context.Context, filter inventory.StockFilter) ([]inventory.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchased := map[int64]bool{}
	for _, e := range s.entries {
		if e.Direction == inventory.DirectionIn && !e.IsReversal() {
			purchased[e.PartID] = true
		}
	}
	var out []inventory.StockLevel
	for _, p := range s.parts {
		if filter.OnlyPurchased && !purchased[p.ID] {
			continue
		}
		out = append(out, inventory.StockLevel{PartID: p.ID, PartNumber: p.PartNumber, Name: p.Name, Quantity: s.balances[p.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out, nil
}

// Movements implements inventory.RepositoryPort.
func (s *Store) Movements(_ context.Context, partID int64, limit int) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.Movement
	for _, e := range s.entries {
		if e.PartID == partID {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LedgerSums implements inventory.RepositoryPort.
func (s *Store) LedgerSums(context.Context) (map[int64]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]decimal.Decimal{}
	for _, e := range s.entries {
		out[e.PartID] = out[e.PartID].Add(e.Signed())
	}
	return out, nil
}

// Balances implements inventory.RepositoryPort.
func (s *Store) Balances(context.Context) (map[int64]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

// Entries returns a copy of every ledger entry.
func (s *Store) Entries() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Movement(nil), s.entries...)
}

// SetBalance overwrites a running balance, for drift tests.
func (s *Store) SetBalance(partID int64, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[partID] = qty
}

type storeTx struct {
	s *Store
}

func (t *storeTx) HasEntry(_ context.Context, invoiceItemID int64) (bool, error) {
	for _, e := range t.s.entries {
		if e.InvoiceItemID == invoiceItemID && !e.IsReversal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *storeTx) reversed(id int64) bool {
	for _, e := range t.s.entries {
		if e.ReversesID != nil && *e.ReversesID == id {
			return true
		}
	}
	return false
}

func (t *storeTx) FindActiveEntry(_ context.Context, invoiceItemID int64) (inventory.Movement, error) {
	for _, e := range t.s.entries {
		if e.InvoiceItemID == invoiceItemID && !e.IsReversal() && !t.reversed(e.ID) {
			return e, nil
		}
	}
	return inventory.Movement{}, inventory.ErrEntryNotFound
}

func (t *storeTx) ActiveEntriesForInvoice(_ context.Context, invoiceID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, e := range t.s.entries {
		if e.InvoiceID == invoiceID && !e.IsReversal() && !t.reversed(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *storeTx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	t.s.inserts++
	if t.s.FailInsertAfter > 0 && t.s.inserts >= t.s.FailInsertAfter {
		return inventory.Movement{}, ErrInjected
	}
	for _, e := range t.s.entries {
		if m.ReversesID == nil && e.ReversesID == nil && e.InvoiceItemID == m.InvoiceItemID {
			return inventory.Movement{}, &inventory.DuplicateLedgerEntryError{InvoiceItemID: m.InvoiceItemID}
		}
	}
	t.s.nextID++
	m.ID = t.s.nextID
	t.s.entries = append(t.s.entries, m)
	return m, nil
}

func (t *storeTx) GetBalanceForUpdate(_ context.Context, partID int64) (inventory.Balance, error) {
	qty, ok := t.s.balances[partID]
	if !ok {
		return inventory.Balance{PartID: partID, Quantity: decimal.Zero}, inventory.ErrBalanceNotFound
	}
	return inventory.Balance{PartID: partID, Quantity: qty}, nil
}

func (t *storeTx) UpsertBalance(_ context.Context, b inventory.Balance) error {
	t.s.balances[b.PartID] = b.Quantity
	return nil
}
