package cmd

import (
	"fmt"

	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database"
	"github.com/gymgate/gymgate/internal/database/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the biometric similarity index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the HNSW index from active enrollments",
	Long: `Rebuild the in-memory HNSW similarity index from all active
biometric enrollments and persist it to HNSW_INDEX_PATH. The serve command
loads the persisted index at startup instead of rebuilding it.`,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.HNSWIndexPath == "" {
		return fmt.Errorf("HNSW_INDEX_PATH must be set to persist the index")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewBiometricRepository(pool)
	records, err := repo.ActiveRecords(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading enrollments: %w", err)
	}

	index := database.NewHNSWIndex()
	bar := progressbar.Default(int64(len(records)), "indexing")
	for i := range records {
		index.Add(&records[i])
		_ = bar.Add(1)
	}

	index.SetPath(cfg.Database.HNSWIndexPath)
	if err := index.Save(); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}

	fmt.Printf("\nIndexed %d enrollments to %s\n", index.Count(), cfg.Database.HNSWIndexPath)
	return nil
}
