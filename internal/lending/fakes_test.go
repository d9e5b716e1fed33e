package lending

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

// memoryCatalog is an in-memory CatalogStore.
type memoryCatalog struct {
	mu      sync.RWMutex
	copies  map[uuid.UUID]*domain.BookCopy
	listErr error
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{copies: make(map[uuid.UUID]*domain.BookCopy)}
}

func (c *memoryCatalog) addCopy(bookID uuid.UUID, code string) *domain.BookCopy {
	c.mu.Lock()
	defer c.mu.Unlock()
	bc := &domain.BookCopy{ID: uuid.New(), BookID: bookID, CopyCode: code}
	c.copies[bc.ID] = bc
	return bc
}

func (c *memoryCatalog) GetCopy(_ context.Context, id uuid.UUID) (*domain.BookCopy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bc, ok := c.copies[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityCopy, id.String())
	}
	return bc, nil
}

func (c *memoryCatalog) ListCopies(_ context.Context, bookID uuid.UUID) ([]*domain.BookCopy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := make([]*domain.BookCopy, 0)
	for _, bc := range c.copies {
		if bc.BookID == bookID {
			out = append(out, bc)
		}
	}
	slices.SortFunc(out, func(a, b *domain.BookCopy) int { return strings.Compare(a.CopyCode, b.CopyCode) })
	return out, nil
}

// memoryMembers is an in-memory MemberStore.
type memoryMembers struct {
	mu      sync.RWMutex
	members map[uuid.UUID]*domain.Member
}

func newMemoryMembers() *memoryMembers {
	return &memoryMembers{members: make(map[uuid.UUID]*domain.Member)}
}

func (m *memoryMembers) add(name string) *domain.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := &domain.Member{ID: uuid.New(), Name: name}
	m.members[member.ID] = member
	return member
}

func (m *memoryMembers) Get(_ context.Context, id uuid.UUID) (*domain.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	member, ok := m.members[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityMember, id.String())
	}
	return member, nil
}

// memoryLedger enforces the one-active-loan-per-copy rule atomically under
// its mutex, the way the partial unique index does in Postgres.
type memoryLedger struct {
	mu     sync.Mutex
	loans  map[uuid.UUID]*domain.Loan
	active map[uuid.UUID]uuid.UUID // copy id -> loan id
	now    func() time.Time

	// beforeCreate runs outside the lock before each Create.
	beforeCreate func()
	activeErr    error
}

var _ repository.LoanLedger = (*memoryLedger)(nil)

func newMemoryLedger(now func() time.Time) *memoryLedger {
	return &memoryLedger{
		loans:  make(map[uuid.UUID]*domain.Loan),
		active: make(map[uuid.UUID]uuid.UUID),
		now:    now,
	}
}

func (l *memoryLedger) Create(_ context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error) {
	if l.beforeCreate != nil {
		l.beforeCreate()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	if dueAt.Before(now) {
		return nil, domain.NewValidationError("due_at", "must not be before borrowed_at")
	}
	if _, taken := l.active[copyID]; taken {
		return nil, domain.NewActiveLoanConflictError(copyID)
	}
	loan := &domain.Loan{ID: uuid.New(), MemberID: memberID, CopyID: copyID, BorrowedAt: now, DueAt: dueAt}
	l.loans[loan.ID] = loan
	l.active[copyID] = loan.ID
	cp := *loan
	return &cp, nil
}

func (l *memoryLedger) Get(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	loan, ok := l.loans[id]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityLoan, id.String())
	}
	cp := *loan
	return &cp, nil
}

func (l *memoryLedger) List(_ context.Context, filter repository.LoanFilter) ([]*domain.LoanDetails, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.LoanDetails, 0)
	for _, loan := range l.loans {
		if filter.MemberID != nil && loan.MemberID != *filter.MemberID {
			continue
		}
		if filter.ActiveOnly && !loan.IsActive() {
			continue
		}
		out = append(out, &domain.LoanDetails{Loan: *loan})
	}
	slices.SortFunc(out, func(a, b *domain.LoanDetails) int { return b.BorrowedAt.Compare(a.BorrowedAt) })
	return out, nil
}

func (l *memoryLedger) ActiveCopyIDs(context.Context) (map[uuid.UUID]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeErr != nil {
		return nil, l.activeErr
	}
	out := make(map[uuid.UUID]struct{}, len(l.active))
	for copyID := range l.active {
		out[copyID] = struct{}{}
	}
	return out, nil
}

func (l *memoryLedger) MarkReturned(_ context.Context, loan *domain.Loan, returnedAt time.Time) (*domain.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.loans[loan.ID]
	if !ok {
		return nil, domain.NewNotFoundError(domain.EntityLoan, loan.ID.String())
	}
	if returnedAt.Before(stored.BorrowedAt) {
		return nil, domain.NewValidationError("returned_at", "must not be before borrowed_at")
	}
	stored.ReturnedAt = &returnedAt
	if l.active[stored.CopyID] == stored.ID {
		delete(l.active, stored.CopyID)
	}
	cp := *stored
	return &cp, nil
}
