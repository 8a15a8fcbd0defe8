package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gymgate/gymgate/internal/checkin"
	"github.com/gymgate/gymgate/internal/config"
	"github.com/gymgate/gymgate/internal/database/postgres"
	"github.com/gymgate/gymgate/internal/extractor"
	"github.com/gymgate/gymgate/internal/notify"
	"github.com/gymgate/gymgate/internal/recognizer"
	"github.com/gymgate/gymgate/internal/seal"
	"github.com/gymgate/gymgate/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the check-in server",
	Long: `Start the Gymgate check-in server.
The server exposes face check-in, biometric enrollment, and daily
attendance endpoints over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// initHNSW builds or loads the biometric HNSW index for fast similarity search.
func initHNSW(ctx context.Context, repo *postgres.BiometricRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading biometric HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for identity matching...\n")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build biometric HNSW index: %v\n", err)
		fmt.Printf("Identity matching will use PostgreSQL queries (slower)\n")
	} else {
		fmt.Printf("Biometric HNSW index ready with %d enrollments\n", repo.HNSWCount())
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

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
	attendanceRepo := postgres.NewAttendanceRepository(pool)
	memberRepo := postgres.NewMemberRepository(pool)

	initHNSW(cmd.Context(), biometricRepo, cfg.Database.HNSWIndexPath)

	extractorClient := extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Model, cfg.Extractor.Timeout)
	resolver := recognizer.NewResolver(extractorClient, biometricRepo, cfg.Recognition)
	notifier := notify.NewWebhook(cfg.Notifier.WebhookURL)

	service := checkin.NewService(
		resolver,
		extractorClient,
		biometricRepo,
		memberRepo,
		attendanceRepo,
		keeper,
		notifier,
		cfg.Database.MaxRetries,
	)

	server := web.NewServer(cfg, port, host, service)

	// Graceful shutdown on SIGINT/SIGTERM.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Printf("Received %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
