package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database/postgres"
	"github.com/gymgate/gymgate/internal/extractor"
	"github.com/gymgate/gymgate/internal/notify"
	"github.com/gymgate/gymgate/internal/recognizer"
	"github.com/gymgate/gymgate/internal/seal"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Bulk-enroll face images from a directory",
	Long: `Enroll face biometrics for many members at once. Image files must
be named <member-uuid>.jpg (or .png/.webp); each one is sent through the
extractor and stored as the member's active enrollment.

Examples:
  gymgate enroll --dir ./photos
  gymgate enroll --dir ./photos --dry-run`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory of face images named <member-uuid>.<ext>")
	enrollCmd.Flags().Bool("dry-run", false, "List what would be enrolled without storing anything")
	_ = enrollCmd.MarkFlagRequired("dir")
}

// enrollCandidate is one image file with a parseable member id.
type enrollCandidate struct {
	memberID uuid.UUID
	path     string
}

// collectEnrollCandidates scans the directory for image files named by
// member uuid. Unparseable names are reported and skipped.
func collectEnrollCandidates(dir string) ([]enrollCandidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var candidates []enrollCandidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" && ext != ".webp" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(e.Name(), ext))
		if err != nil {
			fmt.Printf("Skipping %s: file name is not a member uuid\n", e.Name())
			continue
		}
		candidates = append(candidates, enrollCandidate{memberID: id, path: filepath.Join(dir, e.Name())})
	}
	return candidates, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	dir, _ := cmd.Flags().GetString("dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	candidates, err := collectEnrollCandidates(dir)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No enrollable images found")
		return nil
	}

	if dryRun {
		for _, c := range candidates {
			fmt.Printf("Would enroll %s from %s\n", c.memberID, c.path)
		}
		fmt.Printf("%d members would be enrolled\n", len(candidates))
		return nil
	}

	key, err := cfg.Biometric.DecodeEncryptionKey()
	if err != nil {
		return fmt.Errorf("biometric encryption key: %w", err)
	}
	keeper, err := seal.NewKeeper(key)
	if err != nil {
		return fmt.Errorf("creating thumbnail keeper: %w", err)
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer pool.Close()

	biometricRepo := postgres.NewBiometricRepository(pool)
	extractorClient := extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Model, cfg.Extractor.Timeout)
	resolver := recognizer.NewResolver(extractorClient, biometricRepo, cfg.Recognition)

	service := checkin.NewService(
		resolver,
		extractorClient,
		biometricRepo,
		postgres.NewMemberRepository(pool),
		postgres.NewAttendanceRepository(pool),
		keeper,
		notify.Nop{},
		cfg.Database.MaxRetries,
	)

	bar := progressbar.Default(int64(len(candidates)), "enrolling")
	enrolled, failed := 0, 0
	for _, c := range candidates {
		data, err := os.ReadFile(c.path)
		if err != nil {
			fmt.Printf("\n%s: %v\n", c.path, err)
			failed++
			_ = bar.Add(1)
			continue
		}

		if _, err := service.Register(cmd.Context(), c.memberID, data); err != nil {
			fmt.Printf("\n%s: %v\n", c.memberID, err)
			failed++
		} else {
			enrolled++
		}
		_ = bar.Add(1)
	}

	fmt.Printf("\nEnrolled %d members (%d failed)\n", enrolled, failed)
	return nil
}
