package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/enroll"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll --name NAME <image>...",
	Short: "Enroll an identity from several images",
	Long: `Enroll an identity by averaging one shot per image. Every image must contain
exactly one face. By default the number of shots is the number of images;
an existing identity with the same name is overwritten.

Examples:
  face-id enroll --name Alice alice1.jpg alice2.jpg alice3.jpg alice4.jpg alice5.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Identity name (required)")
	enrollCmd.Flags().Bool("json", false, "Output the final result as JSON")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := mustGetString(cmd, "name")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Enrollment.Shots = len(args)
	// The command saves explicitly once the identity is committed.
	cfg.Gallery.AutoSave = false

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	g, loaded := loadGallery(ctx, store)
	ctrl, err := newController(cfg, g, store, storeWritable(store, loaded))
	if err != nil {
		return err
	}

	if err := ctrl.SetMode(pipeline.ModeEnrollment); err != nil {
		return err
	}
	if err := ctrl.BindName(name); err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	res, err := captureAll(ctx, ctrl, args, !jsonOutput)
	if err != nil {
		return err
	}

	if err := ctrl.Quit(ctx); err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("Enrolled %s from %d shots (%d identities in gallery)\n", res.Name, res.Shots, g.Len())
	return nil
}

// captureAll feeds one image per shot and stops at the first rejected shot.
func captureAll(ctx context.Context, ctrl *pipeline.Controller, paths []string, verbose bool) (enroll.Result, error) {
	var res enroll.Result
	for _, path := range paths {
		frame, err := imageio.DecodeFile(path)
		if err != nil {
			return res, err
		}
		if _, err := ctrl.ProcessFrame(ctx, frame); err != nil {
			return res, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}

		res = ctrl.Capture(ctx)
		switch res.Outcome {
		case enroll.OutcomeAccumulated, enroll.OutcomeCommitted:
			if verbose {
				fmt.Printf("%s: shot %d/%d\n", filepath.Base(path), res.Shot, res.Shots)
			}
		case enroll.OutcomeFailed:
			return res, res.Err
		default:
			return res, fmt.Errorf("%s: shot rejected: %s", filepath.Base(path), res.Reason)
		}
	}
	if res.Outcome != enroll.OutcomeCommitted {
		return res, fmt.Errorf("enrollment incomplete: %d/%d shots", res.Shot, res.Shots)
	}
	return res, nil
}
