package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/database/postgres"
	"github.com/cadetops/muster/internal/embedder"
	"github.com/cadetops/muster/internal/facematch"
	"github.com/cadetops/muster/internal/recognition"
	"github.com/cadetops/muster/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Muster attendance server.
The server exposes the attendance API: officers log in, open sessions,
and cadets mark attendance with a face capture.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")
	sessionSecret := mustGetString(cmd, "session-secret")

	if sessionSecret == "" {
		sessionSecret = os.Getenv("WEB_SESSION_SECRET")
	}
	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host, sessionSecret
}

// startSessionAutoClose schedules the nightly job that deactivates sessions
// whose date has passed.
func startSessionAutoClose(sessions database.SessionStore) *gocron.Scheduler {
	scheduler := gocron.NewScheduler(time.Local)
	_, err := scheduler.Every(1).Day().At("23:59").Do(func() {
		today := time.Now().Truncate(24 * time.Hour)
		closed, err := sessions.CloseExpired(context.Background(), today)
		if err != nil {
			log.Printf("Warning: session auto-close failed: %v", err)
			return
		}
		if closed > 0 {
			log.Printf("Auto-closed %d expired sessions", closed)
		}
	})
	if err != nil {
		log.Printf("Warning: could not schedule session auto-close: %v", err)
	}
	scheduler.StartAsync()
	return scheduler
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	metric, err := facematch.ParseMetric(cfg.Face.Metric)
	if err != nil {
		return fmt.Errorf("invalid FACE_METRIC: %w", err)
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	index := database.NewEnrollmentIndex()
	embeddingRepo := postgres.NewEmbeddingRepository(pool, index)
	attendanceRepo := postgres.NewAttendanceRepository(pool)
	attemptRepo := postgres.NewAttemptLogRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	cadetRepo := postgres.NewCadetRepository(pool)
	officerRepo := postgres.NewOfficerRepository(pool)
	webSessionRepo := postgres.NewWebSessionRepository(pool)

	ctx := context.Background()
	fmt.Printf("Building in-memory index over enrolled faces...\n")
	if err := embeddingRepo.BuildIndex(ctx); err != nil {
		fmt.Printf("Warning: failed to build enrollment index: %v\n", err)
		fmt.Printf("Duplicate-enrollment warnings will be unavailable\n")
	} else {
		fmt.Printf("Enrollment index ready with %d faces\n", index.Count())
	}

	detector := embedder.New(&cfg.Embedder)
	if !detector.IsAvailable(ctx) {
		fmt.Printf("Warning: embedder at %s is not responding\n", cfg.Embedder.URL)
	}

	matcher := facematch.NewMatcher(metric, cfg.Face.MaxEuclideanDistance)
	pipeline := recognition.NewPipeline(embeddingRepo, attendanceRepo, attemptRepo, detector, matcher, recognition.PipelineConfig{
		Threshold: cfg.MatchThreshold(),
		Simulate:  cfg.SimulationEnabled(),
	})
	if cfg.SimulationEnabled() {
		fmt.Println("FACE_SIMULATE is on: probes mark the first candidate without detection")
	}
	enroller := recognition.NewEnroller(embeddingRepo, detector, index, cfg.Embedder.Model)

	port, host, sessionSecret := resolveServeHostPort(cmd)

	server := web.NewServer(port, host, sessionSecret, web.Deps{
		Embeddings:  embeddingRepo,
		Attendance:  attendanceRepo,
		Attempts:    attemptRepo,
		Sessions:    sessionRepo,
		Cadets:      cadetRepo,
		Officers:    officerRepo,
		Pipeline:    pipeline,
		Enroller:    enroller,
		Index:       index,
		Embedder:    detector,
		SessionRepo: webSessionRepo,
	})

	scheduler := startSessionAutoClose(sessionRepo)
	defer scheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Muster attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
