package seed

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/repository"
)

// exportPageSize is the number of loans read per ledger query.
const exportPageSize = 1000

// LoanLister reads pages of loans with details.
type LoanLister interface {
	List(ctx context.Context, filter repository.LoanFilter) ([]*domain.LoanDetails, error)
}

// LoanRecord is one row of the Parquet loan export. Timestamps are Unix
// milliseconds in UTC. returned_at is a plain optional INT64 because
// parquet-go only accepts the timestamp annotation on required columns.
type LoanRecord struct {
	LoanID     string `parquet:"loan_id"`
	MemberID   string `parquet:"member_id"`
	MemberName string `parquet:"member_name"`
	CopyID     string `parquet:"copy_id"`
	CopyCode   string `parquet:"copy_code"`
	BookID     string `parquet:"book_id"`
	BookTitle  string `parquet:"book_title"`
	BookAuthor string `parquet:"book_author"`
	BorrowedAt int64  `parquet:"borrowed_at,timestamp(millisecond)"`
	DueAt      int64  `parquet:"due_at,timestamp(millisecond)"`
	ReturnedAt *int64 `parquet:"returned_at,optional"`
}

// ExportFilter selects the loans to export.
type ExportFilter struct {
	MemberID   *uuid.UUID
	ActiveOnly bool
}

// ExportLoans writes every matching loan, newest first, to w as Parquet and
// returns the number of rows written.
func ExportLoans(ctx context.Context, loans LoanLister, w io.Writer, filter ExportFilter) (int, error) {
	writer := parquet.NewGenericWriter[LoanRecord](w)

	total := 0
	rows := make([]LoanRecord, 0, exportPageSize)
	for offset := 0; ; offset += exportPageSize {
		page, err := loans.List(ctx, repository.LoanFilter{
			MemberID:   filter.MemberID,
			ActiveOnly: filter.ActiveOnly,
			Limit:      exportPageSize,
			Offset:     offset,
		})
		if err != nil {
			return total, fmt.Errorf("failed to list loans: %w", err)
		}

		rows = rows[:0]
		for _, l := range page {
			rows = append(rows, toLoanRecord(l))
		}
		if len(rows) > 0 {
			n, err := writer.Write(rows)
			total += n
			if err != nil {
				return total, fmt.Errorf("failed to write parquet rows: %w", err)
			}
		}
		if len(page) < exportPageSize {
			break
		}
	}

	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return total, nil
}

func toLoanRecord(l *domain.LoanDetails) LoanRecord {
	rec := LoanRecord{
		LoanID:     l.ID.String(),
		MemberID:   l.MemberID.String(),
		MemberName: l.MemberName,
		CopyID:     l.CopyID.String(),
		CopyCode:   l.CopyCode,
		BookID:     l.BookID.String(),
		BookTitle:  l.BookTitle,
		BookAuthor: l.BookAuthor,
		BorrowedAt: l.BorrowedAt.UTC().UnixMilli(),
		DueAt:      l.DueAt.UTC().UnixMilli(),
	}
	if l.ReturnedAt != nil {
		ms := l.ReturnedAt.UTC().UnixMilli()
		rec.ReturnedAt = &ms
	}
	return rec
}
