package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/library-lending-service/internal/repository"
	"github.com/helixir/library-lending-service/internal/seed"
)

func newSeedCmd(verbose *bool) *cobra.Command {
	var file string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load books, members, and copies into the database",
		Long: `Seed inserts the built-in sample library, or the YAML file given with --file.

Books are matched by title, members by email, and copies by copy code, so
running seed twice creates nothing the second time.`,
		Example: `  # Seed the built-in sample data
  librarian seed

  # Preview what a custom file would create
  librarian seed --file ./branch.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := loadLibrary(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx, "seed", *verbose)
			if err != nil {
				return err
			}
			defer e.Close()

			seeder := seed.NewSeeder(
				repository.NewPgCatalogRepository(e.db),
				repository.NewPgMemberRepository(e.db),
				e.logger,
				dryRun,
			)
			res, err := seeder.Seed(ctx, lib)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			verb := "created"
			if dryRun {
				verb = "would create"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d books, %d members, %d copies (%d skipped)\n",
				verb, res.BooksCreated, res.MembersCreated, res.CopiesCreated, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to the built-in sample library)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be created without writing")

	return cmd
}

func loadLibrary(file string) (*seed.Library, error) {
	if file == "" {
		return seed.DefaultLibrary()
	}
	lib, err := seed.LoadFile(file)
	if err != nil {
		return nil, fmt.Errorf("load seed file: %w", err)
	}
	return lib, nil
}
