package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixir/library-lending-service/internal/repository"
	"github.com/helixir/library-lending-service/internal/seed"
)

func newExportCmd(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export lending data",
	}
	cmd.AddCommand(newExportLoansCmd(verbose))
	return cmd
}

func newExportLoansCmd(verbose *bool) *cobra.Command {
	var out string
	var memberID string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Write loans with member, copy, and book details to a Parquet file",
		Example: `  # Every loan ever recorded
  librarian export loans --out loans.parquet

  # Books currently out for one member
  librarian export loans --out open.parquet --member-id 7d9f... --active-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}

			filter := seed.ExportFilter{ActiveOnly: activeOnly}
			if memberID != "" {
				id, err := uuid.Parse(memberID)
				if err != nil {
					return fmt.Errorf("invalid --member-id: %w", err)
				}
				filter.MemberID = &id
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx, "export", *verbose)
			if err != nil {
				return err
			}
			defer e.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}

			n, err := seed.ExportLoans(ctx, repository.NewPgLoanLedger(e.db), f, filter)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				_ = os.Remove(out)
				return fmt.Errorf("export loans: %w", err)
			}

			e.logger.Info().Int("loans", n).Str("file", out).Msg("loan export complete")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d loans to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output Parquet file")
	cmd.Flags().StringVar(&memberID, "member-id", "", "Only export loans of this member")
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "Only export loans that have not been returned")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
