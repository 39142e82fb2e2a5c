package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/erp/stockflow/internal/application/inventory"
	"github.com/erp/stockflow/internal/domain/approval"
	"github.com/erp/stockflow/internal/domain/ledger"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/domain/transfer"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of every core repository with a
// serializing TransactionScope. Each Execute holds one mutex for its whole
// run and restores the previous state when fn fails, so tests see the same
// all-or-nothing behavior as the database.
type Store struct {
	mu    sync.Mutex
	state *memState
	// Executions counts Execute calls
	Executions int
}

type levelKey struct {
	tenant, branch, product uuid.UUID
}

type idemKey struct {
	tenant     uuid.UUID
	scope, key string
}

type memState struct {
	lots      map[uuid.UUID]*ledger.StockLot
	entries   []*ledger.LedgerEntry
	levels    map[levelKey]*ledger.StockLevel
	transfers map[uuid.UUID]*transfer.Transfer
	rules     map[uuid.UUID]*approval.Rule
	records   map[uuid.UUID]*approval.Record
	idem      map[idemKey]*inventory.IdempotencyRecord
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: &memState{
		lots:      map[uuid.UUID]*ledger.StockLot{},
		levels:    map[levelKey]*ledger.StockLevel{},
		transfers: map[uuid.UUID]*transfer.Transfer{},
		rules:     map[uuid.UUID]*approval.Rule{},
		records:   map[uuid.UUID]*approval.Record{},
		idem:      map[idemKey]*inventory.IdempotencyRecord{},
	}}
}

func (s *memState) snapshot() *memState {
	cp := &memState{
		lots:      make(map[uuid.UUID]*ledger.StockLot, len(s.lots)),
		entries:   append([]*ledger.LedgerEntry(nil), s.entries...),
		levels:    make(map[levelKey]*ledger.StockLevel, len(s.levels)),
		transfers: make(map[uuid.UUID]*transfer.Transfer, len(s.transfers)),
		rules:     make(map[uuid.UUID]*approval.Rule, len(s.rules)),
		records:   make(map[uuid.UUID]*approval.Record, len(s.records)),
		idem:      make(map[idemKey]*inventory.IdempotencyRecord, len(s.idem)),
	}
	for k, v := range s.lots {
		cp.lots[k] = v
	}
	for k, v := range s.levels {
		cp.levels[k] = v
	}
	for k, v := range s.transfers {
		cp.transfers[k] = v
	}
	for k, v := range s.rules {
		cp.rules[k] = v
	}
	for k, v := range s.records {
		cp.records[k] = v
	}
	for k, v := range s.idem {
		cp.idem[k] = v
	}
	return cp
}

// Execute implements inventory.TransactionScope
func (s *Store) Execute(_ context.Context, fn func(repos inventory.TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Executions++
	saved := s.state.snapshot()
	if err := fn(memRepos{view{s: s, tx: true}}); err != nil {
		s.state = saved
		return err
	}
	return nil
}

type view struct {
	s  *Store
	tx bool
}

func (v view) do(fn func(st *memState) error) error {
	if !v.tx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.state)
}

type memRepos struct{ v view }

func (r memRepos) Lots() ledger.LotRepository                   { return lotRepo{r.v} }
func (r memRepos) Entries() ledger.EntryRepository              { return entryRepo{r.v} }
func (r memRepos) Levels() ledger.LevelRepository               { return levelRepo{r.v} }
func (r memRepos) Transfers() transfer.Repository               { return transferRepo{r.v} }
func (r memRepos) Rules() approval.RuleRepository               { return ruleRepo{r.v} }
func (r memRepos) Approvals() approval.RecordRepository         { return recordRepo{r.v} }
func (r memRepos) Idempotency() inventory.IdempotencyRepository { return idemRepo{r.v} }

// Repos returns repositories that read and write outside any transaction
func (s *Store) Repos() inventory.TransactionalRepositories {
	return memRepos{view{s: s}}
}

// ---- lots ----

type lotRepo struct{ v view }

func cloneLot(l *ledger.StockLot) *ledger.StockLot {
	cp := *l
	return &cp
}

func (r lotRepo) FindOpenForUpdate(_ context.Context, tenantID, branchID, productID uuid.UUID) ([]*ledger.StockLot, error) {
	var out []*ledger.StockLot
	err := r.v.do(func(st *memState) error {
		for _, l := range st.lots {
			if l.TenantID == tenantID && l.BranchID == branchID && l.ProductID == productID && l.IsOpen() {
				out = append(out, cloneLot(l))
			}
		}
		return nil
	})
	ledger.SortFIFO(out)
	return out, err
}

func (r lotRepo) FindByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.StockLot, error) {
	var out []*ledger.StockLot
	err := r.v.do(func(st *memState) error {
		for _, id := range ids {
			l, ok := st.lots[id]
			if !ok || l.TenantID != tenantID {
				return ledger.ErrLotNotFound.WithMessage("lot %s not found", id)
			}
			out = append(out, cloneLot(l))
		}
		return nil
	})
	return out, err
}

func (r lotRepo) FindByIDsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*ledger.StockLot, error) {
	return r.FindByIDs(ctx, tenantID, ids)
}

func (r lotRepo) Create(_ context.Context, lot *ledger.StockLot) error {
	return r.v.do(func(st *memState) error {
		if _, exists := st.lots[lot.ID]; exists {
			return shared.ErrAlreadyExists
		}
		st.lots[lot.ID] = cloneLot(lot)
		return nil
	})
}

func (r lotRepo) SaveRemaining(_ context.Context, lots ...*ledger.StockLot) error {
	return r.v.do(func(st *memState) error {
		for _, lot := range lots {
			stored, ok := st.lots[lot.ID]
			if !ok {
				return ledger.ErrLotNotFound
			}
			cp := cloneLot(stored)
			cp.QtyRemaining = lot.QtyRemaining
			cp.UpdatedAt = lot.UpdatedAt
			st.lots[lot.ID] = cp
		}
		return nil
	})
}

func (r lotRepo) List(_ context.Context, filter ledger.LotFilter) ([]*ledger.StockLot, error) {
	var out []*ledger.StockLot
	err := r.v.do(func(st *memState) error {
		for _, l := range st.lots {
			if l.TenantID != filter.TenantID || l.BranchID != filter.BranchID {
				continue
			}
			if filter.ProductID != nil && l.ProductID != *filter.ProductID {
				continue
			}
			if filter.OpenOnly && !l.IsOpen() {
				continue
			}
			out = append(out, cloneLot(l))
		}
		return nil
	})
	ledger.SortFIFO(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

// ---- entries ----

type entryRepo struct{ v view }

func (r entryRepo) Append(_ context.Context, entries ...*ledger.LedgerEntry) error {
	return r.v.do(func(st *memState) error {
		for _, e := range entries {
			cp := *e
			st.entries = append(st.entries, &cp)
		}
		return nil
	})
}

func (r entryRepo) List(_ context.Context, filter ledger.EntryFilter) ([]*ledger.LedgerEntry, error) {
	var out []*ledger.LedgerEntry
	err := r.v.do(func(st *memState) error {
		for _, e := range st.entries {
			if e.TenantID != filter.TenantID || e.BranchID != filter.BranchID {
				continue
			}
			if filter.ProductID != nil && e.ProductID != *filter.ProductID {
				continue
			}
			if filter.LotID != nil && (e.LotID == nil || *e.LotID != *filter.LotID) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

// ---- levels ----

type levelRepo struct{ v view }

func (r levelRepo) GetForUpdate(_ context.Context, tenantID, branchID, productID uuid.UUID) (*ledger.StockLevel, error) {
	var out *ledger.StockLevel
	err := r.v.do(func(st *memState) error {
		key := levelKey{tenantID, branchID, productID}
		l, ok := st.levels[key]
		if !ok {
			l = ledger.NewStockLevel(tenantID, branchID, productID)
			st.levels[key] = l
		}
		cp := *l
		out = &cp
		return nil
	})
	return out, err
}

func (r levelRepo) Save(_ context.Context, level *ledger.StockLevel) error {
	return r.v.do(func(st *memState) error {
		cp := *level
		st.levels[levelKey{level.TenantID, level.BranchID, level.ProductID}] = &cp
		return nil
	})
}

func (r levelRepo) Find(_ context.Context, tenantID, branchID uuid.UUID, productID *uuid.UUID) ([]*ledger.StockLevel, error) {
	var out []*ledger.StockLevel
	err := r.v.do(func(st *memState) error {
		for k, l := range st.levels {
			if k.tenant != tenantID || k.branch != branchID {
				continue
			}
			if productID != nil && k.product != *productID {
				continue
			}
			cp := *l
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ProductID[:], out[j].ProductID[:]) < 0 })
	return out, err
}

// ---- transfers ----

type transferRepo struct{ v view }

func cloneTransfer(t *transfer.Transfer) *transfer.Transfer {
	cp := *t
	cp.ClearDomainEvents()
	cp.Items = make([]*transfer.Item, 0, len(t.Items))
	for _, item := range t.Items {
		ic := *item
		ic.ShipmentBatches = make([]transfer.ShipmentBatch, 0, len(item.ShipmentBatches))
		for _, b := range item.ShipmentBatches {
			b.LotsConsumed = append([]ledger.LotDraw(nil), b.LotsConsumed...)
			ic.ShipmentBatches = append(ic.ShipmentBatches, b)
		}
		ic.Receipts = append([]transfer.ReceiptBatch(nil), item.Receipts...)
		cp.Items = append(cp.Items, &ic)
	}
	return &cp
}

func (r transferRepo) Create(_ context.Context, t *transfer.Transfer) error {
	return r.v.do(func(st *memState) error {
		for _, other := range st.transfers {
			if other.TenantID == t.TenantID && other.TransferNumber == t.TransferNumber {
				return transfer.ErrTransferNumberTaken
			}
		}
		st.transfers[t.ID] = cloneTransfer(t)
		return nil
	})
}

func (r transferRepo) Save(_ context.Context, t *transfer.Transfer) error {
	return r.v.do(func(st *memState) error {
		stored, ok := st.transfers[t.ID]
		if !ok || stored.TenantID != t.TenantID {
			return transfer.ErrTransferNotFound
		}
		if stored.Version != t.Version {
			return shared.ErrConcurrencyConflict
		}
		t.IncrementVersion()
		st.transfers[t.ID] = cloneTransfer(t)
		return nil
	})
}

func (r transferRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*transfer.Transfer, error) {
	var out *transfer.Transfer
	err := r.v.do(func(st *memState) error {
		t, ok := st.transfers[id]
		if !ok || t.TenantID != tenantID {
			return transfer.ErrTransferNotFound
		}
		out = cloneTransfer(t)
		return nil
	})
	return out, err
}

func (r transferRepo) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*transfer.Transfer, error) {
	return r.FindByID(ctx, tenantID, id)
}

func (r transferRepo) List(_ context.Context, f transfer.ListFilter) ([]*transfer.Transfer, error) {
	sortBy := f.SortBy
	if !sortBy.IsValid() {
		sortBy = transfer.SortByCreatedAt
	}
	less := func(a, b *transfer.Transfer) bool {
		va, vb := sortBy.SortValue(a), sortBy.SortValue(b)
		if !va.Equal(vb) {
			if f.Ascending {
				return va.Before(vb)
			}
			return va.After(vb)
		}
		c := bytes.Compare(a.ID[:], b.ID[:])
		if f.Ascending {
			return c < 0
		}
		return c > 0
	}
	afterCursor := func(t *transfer.Transfer) bool {
		if f.Cursor == nil {
			return true
		}
		probe := &transfer.Transfer{}
		probe.ID = f.Cursor.ID
		probe.CreatedAt = f.Cursor.SortValue
		probe.UpdatedAt = f.Cursor.SortValue
		return less(probe, t)
	}

	var out []*transfer.Transfer
	err := r.v.do(func(st *memState) error {
		for _, t := range st.transfers {
			if t.TenantID != f.TenantID || !matchesFilter(t, f) || !afterCursor(t) {
				continue
			}
			out = append(out, cloneTransfer(t))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if f.Limit > 0 && len(out) > f.Limit+1 {
		out = out[:f.Limit+1]
	}
	return out, err
}

func matchesFilter(t *transfer.Transfer, f transfer.ListFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SourceBranchID != nil && t.SourceBranchID != *f.SourceBranchID {
		return false
	}
	if f.DestinationBranchID != nil && t.DestinationBranchID != *f.DestinationBranchID {
		return false
	}
	if f.BranchID != nil && t.SourceBranchID != *f.BranchID && t.DestinationBranchID != *f.BranchID {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !t.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	return true
}

// ---- approval rules ----

type ruleRepo struct{ v view }

func cloneRule(r *approval.Rule) *approval.Rule {
	cp := *r
	cp.ClearDomainEvents()
	cp.Conditions = append([]approval.Condition(nil), r.Conditions...)
	cp.Levels = append([]approval.Level(nil), r.Levels...)
	return &cp
}

func (r ruleRepo) Create(_ context.Context, rule *approval.Rule) error {
	return r.v.do(func(st *memState) error {
		st.rules[rule.ID] = cloneRule(rule)
		return nil
	})
}

func (r ruleRepo) Save(_ context.Context, rule *approval.Rule) error {
	return r.v.do(func(st *memState) error {
		stored, ok := st.rules[rule.ID]
		if !ok || stored.TenantID != rule.TenantID {
			return approval.ErrRuleNotFound
		}
		if stored.Version != rule.Version {
			return shared.ErrConcurrencyConflict
		}
		rule.IncrementVersion()
		st.rules[rule.ID] = cloneRule(rule)
		return nil
	})
}

func (r ruleRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*approval.Rule, error) {
	var out *approval.Rule
	err := r.v.do(func(st *memState) error {
		rule, ok := st.rules[id]
		if !ok || rule.TenantID != tenantID {
			return approval.ErrRuleNotFound
		}
		out = cloneRule(rule)
		return nil
	})
	return out, err
}

func (r ruleRepo) FindActive(ctx context.Context, tenantID uuid.UUID) ([]*approval.Rule, error) {
	all, err := r.List(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, rule := range all {
		if rule.IsEligible() {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (r ruleRepo) List(_ context.Context, tenantID uuid.UUID, includeArchived bool) ([]*approval.Rule, error) {
	var out []*approval.Rule
	err := r.v.do(func(st *memState) error {
		for _, rule := range st.rules {
			if rule.TenantID != tenantID || (rule.IsArchived && !includeArchived) {
				continue
			}
			out = append(out, cloneRule(rule))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

// ---- approval records ----

type recordRepo struct{ v view }

func cloneRecord(r *approval.Record) *approval.Record {
	cp := *r
	return &cp
}

func (r recordRepo) CreateBatch(_ context.Context, records []*approval.Record) error {
	return r.v.do(func(st *memState) error {
		for _, rec := range records {
			st.records[rec.ID] = cloneRecord(rec)
		}
		return nil
	})
}

func (r recordRepo) FindByTransfer(_ context.Context, tenantID, transferID uuid.UUID) ([]*approval.Record, error) {
	var out []*approval.Record
	err := r.v.do(func(st *memState) error {
		for _, rec := range st.records {
			if rec.TenantID == tenantID && rec.TransferID == transferID {
				out = append(out, cloneRecord(rec))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, err
}

func (r recordRepo) Transition(_ context.Context, rec *approval.Record) error {
	return r.v.do(func(st *memState) error {
		stored, ok := st.records[rec.ID]
		if !ok {
			return approval.ErrRecordNotFound
		}
		if stored.Status != approval.StatusPending {
			return approval.ErrNotPending
		}
		st.records[rec.ID] = cloneRecord(rec)
		return nil
	})
}

// ---- idempotency ----

type idemRepo struct{ v view }

func (r idemRepo) Find(_ context.Context, tenantID uuid.UUID, scope, key string) (*inventory.IdempotencyRecord, error) {
	var out *inventory.IdempotencyRecord
	err := r.v.do(func(st *memState) error {
		if rec, ok := st.idem[idemKey{tenantID, scope, key}]; ok {
			cp := *rec
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r idemRepo) Save(_ context.Context, rec *inventory.IdempotencyRecord) error {
	return r.v.do(func(st *memState) error {
		k := idemKey{rec.TenantID, rec.Scope, rec.Key}
		if _, exists := st.idem[k]; exists {
			return shared.ErrIdempotencyInFlight
		}
		cp := *rec
		st.idem[k] = &cp
		return nil
	})
}

// ---- inspection helpers ----

// OnHandAndLotSum returns the level's on-hand quantity and the sum of its
// open lots, which must always agree
func (s *Store) OnHandAndLotSum(tenantID, branchID, productID uuid.UUID) (onHand, lotSum int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.state.levels[levelKey{tenantID, branchID, productID}]; ok {
		onHand = l.QtyOnHand
	}
	for _, lot := range s.state.lots {
		if lot.TenantID == tenantID && lot.BranchID == branchID && lot.ProductID == productID {
			lotSum += lot.QtyRemaining
		}
	}
	return onHand, lotSum
}

// Lot returns a copy of a stored lot
func (s *Store) Lot(id uuid.UUID) *ledger.StockLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.state.lots[id]; ok {
		return cloneLot(l)
	}
	return nil
}

// EntryCount returns the number of ledger entries
func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.entries)
}
