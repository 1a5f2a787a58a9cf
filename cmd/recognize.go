package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize the faces in one or more images",
	Long: `Detect, align and embed every face in the given images and match each one
against the gallery. The gallery is not modified.

Examples:
  # Recognize faces in one photo
  face-id recognize group.jpg

  # Use a stricter threshold and JSON output
  face-id recognize --threshold 0.9 --json frames/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Distance threshold (default MATCH_THRESHOLD)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON instead of a table")
}

// RecognizeResult is the outcome for one image.
type RecognizeResult struct {
	File  string                `json:"file"`
	Faces []pipeline.FaceResult `json:"faces"`
	Error string                `json:"error,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold > 0 {
		cfg.Match.Threshold = threshold
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	g, _ := loadGallery(ctx, store)
	if g.Len() == 0 && !jsonOutput {
		fmt.Println("Gallery is empty: every face will be reported as unknown.")
	}

	// No store: recognition never writes the gallery back.
	ctrl, err := newController(cfg, g, nil, true)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Recognizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	start := time.Now()
	results := make([]RecognizeResult, 0, len(args))
	for _, path := range args {
		results = append(results, recognizeFile(ctx, ctrl, path))
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Println()
	}

	if jsonOutput {
		return outputJSON(results)
	}

	for _, r := range results {
		name := filepath.Base(r.File)
		if r.Error != "" {
			fmt.Printf("%s: %s\n", name, r.Error)
			continue
		}
		if len(r.Faces) == 0 {
			fmt.Printf("%s: no faces\n", name)
			continue
		}
		for _, f := range r.Faces {
			switch {
			case f.Err != nil:
				fmt.Printf("%s: face %d %v: skipped (%v)\n", name, f.Index, f.Box, f.Err)
			case f.Match != nil:
				fmt.Printf("%s: face %d %v: %s (distance %.4f)\n", name, f.Index, f.Box, f.Label, f.Match.Distance)
			}
		}
	}
	fmt.Printf("\nProcessed %d images in %s\n", len(results), formatDuration(time.Since(start)))
	return nil
}

func recognizeFile(ctx context.Context, ctrl *pipeline.Controller, path string) RecognizeResult {
	res := RecognizeResult{File: path}

	frame, err := imageio.DecodeFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	frameRes, err := ctrl.ProcessFrame(ctx, frame)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Faces = frameRes.Faces
	return res
}
