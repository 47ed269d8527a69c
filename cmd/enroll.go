package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/cadetops/muster/internal/config"
	"github.com/cadetops/muster/internal/database"
	"github.com/cadetops/muster/internal/database/postgres"
	"github.com/cadetops/muster/internal/embedder"
	"github.com/cadetops/muster/internal/recognition"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll cadet faces from a directory of stills",
	Long: `Enroll cadet faces in bulk from a directory of image files.
Each file must be named <SERVICE_NUMBER>.<ext> (e.g. SN0042.jpg). Files
whose service number has no cadet in the roster are skipped, as are
cadets that already have an enrollment unless --force is given. When a
still contains several faces the first detected face is used.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Directory of SERVICE_NUMBER-named image files (required)")
	enrollCmd.Flags().Bool("force", false, "Re-enroll cadets that already have an embedding")
	_ = enrollCmd.MarkFlagRequired("dir")
}

// imageExtensions are the file types the bulk enroller picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	force := mustGetBool(cmd, "force")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if err := postgres.Initialize(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	index := database.NewEnrollmentIndex()
	embeddingRepo := postgres.NewEmbeddingRepository(pool, index)
	cadetRepo := postgres.NewCadetRepository(pool)

	ctx := context.Background()
	if err := embeddingRepo.BuildIndex(ctx); err != nil {
		fmt.Printf("Warning: failed to build enrollment index: %v\n", err)
	}

	detector := embedder.New(&cfg.Embedder)
	if !detector.IsAvailable(ctx) {
		return fmt.Errorf("embedder at %s is not responding", cfg.Embedder.URL)
	}
	enroller := recognition.NewEnroller(embeddingRepo, detector, index, cfg.Embedder.Model)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no image files found in %s", dir)
	}

	bar := progressbar.Default(int64(len(files)), "enrolling")

	var enrolled, skipped, failed int
	for _, name := range files {
		bar.Add(1)

		serviceNumber := strings.TrimSuffix(name, filepath.Ext(name))
		cadet, err := cadetRepo.GetByServiceNumber(ctx, serviceNumber)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				fmt.Printf("\nSkipping %s: no cadet with service number %s\n", name, serviceNumber)
				skipped++
				continue
			}
			return fmt.Errorf("looking up cadet %s: %w", serviceNumber, err)
		}

		if !force {
			existing, err := embeddingRepo.Get(ctx, cadet.ID)
			if err != nil {
				return fmt.Errorf("checking enrollment for %s: %w", serviceNumber, err)
			}
			if existing != nil {
				skipped++
				continue
			}
		}

		img, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("\nFailed to read %s: %v\n", name, err)
			failed++
			continue
		}

		_, similar, err := enroller.EnrollFirstFace(ctx, cadet.ID, img)
		if err != nil {
			if errors.Is(err, recognition.ErrNoFaceDetected) {
				fmt.Printf("\nNo face found in %s\n", name)
			} else {
				fmt.Printf("\nFailed to enroll %s: %v\n", name, err)
			}
			failed++
			continue
		}
		for _, s := range similar {
			fmt.Printf("\nWarning: %s enrolls very close to cadet %d (distance %.3f)\n",
				serviceNumber, s.CadetID, s.Distance)
		}
		enrolled++
	}

	fmt.Printf("\nDone: %d enrolled, %d skipped, %d failed\n", enrolled, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d enrollments failed", failed)
	}
	return nil
}
