package seed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

type fakeLister struct {
	loans   []*domain.LoanDetails
	filters []repository.LoanFilter
	err     error
}

func (f *fakeLister) List(_ context.Context, filter repository.LoanFilter) ([]*domain.LoanDetails, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	if filter.Offset >= len(f.loans) {
		return nil, nil
	}
	end := min(filter.Offset+filter.Limit, len(f.loans))
	return f.loans[filter.Offset:end], nil
}

func readLoanRecords(t *testing.T, data []byte) []LoanRecord {
	t.Helper()
	reader := parquet.NewGenericReader[LoanRecord](bytes.NewReader(data))
	defer reader.Close()

	var records []LoanRecord
	rows := make([]LoanRecord, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if errors.Is(err, io.EOF) {
			return records
		}
		require.NoError(t, err)
		if n == 0 {
			return records
		}
	}
}

func TestExportLoans(t *testing.T) {
	borrowed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	returned := borrowed.Add(72 * time.Hour)
	memberID := uuid.New()

	lister := &fakeLister{loans: []*domain.LoanDetails{
		{
			Loan: domain.Loan{
				ID: uuid.New(), MemberID: memberID, CopyID: uuid.New(),
				BorrowedAt: borrowed, DueAt: borrowed.Add(14 * 24 * time.Hour), ReturnedAt: &returned,
			},
			MemberName: "Alice Chen",
			CopyCode:   "DDIA-001",
			BookID:     uuid.New(),
			BookTitle:  "Designing Data-Intensive Applications",
			BookAuthor: "Martin Kleppmann",
		},
		{
			Loan: domain.Loan{
				ID: uuid.New(), MemberID: memberID, CopyID: uuid.New(),
				BorrowedAt: borrowed, DueAt: borrowed.Add(24 * time.Hour),
			},
			MemberName: "Alice Chen",
			CopyCode:   "RI-001",
		},
	}}

	var buf bytes.Buffer
	n, err := ExportLoans(context.Background(), lister, &buf, ExportFilter{MemberID: &memberID, ActiveOnly: false})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, lister.filters, 1)
	assert.Equal(t, &memberID, lister.filters[0].MemberID)
	assert.Equal(t, exportPageSize, lister.filters[0].Limit)

	records := readLoanRecords(t, buf.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, "DDIA-001", records[0].CopyCode)
	assert.Equal(t, "Martin Kleppmann", records[0].BookAuthor)
	assert.Equal(t, borrowed.UnixMilli(), records[0].BorrowedAt)
	require.NotNil(t, records[0].ReturnedAt)
	assert.Equal(t, returned.UnixMilli(), *records[0].ReturnedAt)
	assert.Nil(t, records[1].ReturnedAt)
}

func TestLoanRecordSchema(t *testing.T) {
	var schema *parquet.Schema
	require.NotPanics(t, func() { schema = parquet.SchemaOf(LoanRecord{}) })

	returned, ok := schema.Lookup("returned_at")
	require.True(t, ok)
	assert.True(t, returned.Node.Optional())

	borrowed, ok := schema.Lookup("borrowed_at")
	require.True(t, ok)
	assert.True(t, borrowed.Node.Required())
}

func TestExportLoans_ReturnedLoanOnly(t *testing.T) {
	borrowed := time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	returned := borrowed.Add(36*time.Hour + 250*time.Millisecond)
	lister := &fakeLister{loans: []*domain.LoanDetails{{
		Loan: domain.Loan{
			ID: uuid.New(), MemberID: uuid.New(), CopyID: uuid.New(),
			BorrowedAt: borrowed, DueAt: borrowed.Add(7 * 24 * time.Hour), ReturnedAt: &returned,
		},
		CopyCode: "SICP-002",
	}}}

	var buf bytes.Buffer
	n, err := ExportLoans(context.Background(), lister, &buf, ExportFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records := readLoanRecords(t, buf.Bytes())
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ReturnedAt)
	assert.Equal(t, returned.UnixMilli(), *records[0].ReturnedAt)
	assert.Equal(t, borrowed.Add(7*24*time.Hour).UnixMilli(), records[0].DueAt)
}

func TestExportLoans_Pages(t *testing.T) {
	lister := &fakeLister{}
	for i := 0; i < exportPageSize+3; i++ {
		lister.loans = append(lister.loans, &domain.LoanDetails{Loan: domain.Loan{ID: uuid.New()}})
	}

	var buf bytes.Buffer
	n, err := ExportLoans(context.Background(), lister, &buf, ExportFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Equal(t, exportPageSize+3, n)
	require.Len(t, lister.filters, 2)
	assert.Equal(t, exportPageSize, lister.filters[1].Offset)
	assert.True(t, lister.filters[1].ActiveOnly)
	assert.Len(t, readLoanRecords(t, buf.Bytes()), exportPageSize+3)
}

func TestExportLoans_ListError(t *testing.T) {
	lister := &fakeLister{err: errors.New("timeout")}
	_, err := ExportLoans(context.Background(), lister, io.Discard, ExportFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list loans")
}
