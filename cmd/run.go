package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run --frames DIR",
	Short: "Step through a directory of frames with interactive commands",
	Long: `Run the frame-synchronous host loop over the images in DIR (sorted by name).
Commands are read from stdin, one per line:

  <enter> or f   process the next frame
  m              toggle recognition/enrollment mode
  n NAME         set the name of the identity being enrolled
  c              capture the face of the last frame as an enrollment shot
  s              show status
  q              quit and save the gallery

End of input also quits and saves. A failed save exits non-zero.`,
	Args: cobra.NoArgs,
	RunE: runLoop,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("frames", "", "Directory containing frame images (required)")
	_ = runCmd.MarkFlagRequired("frames")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	frames, err := pipeline.NewDirFrames(mustGetString(cmd, "frames"))
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, loaded := loadGallery(ctx, store)
	ctrl, err := newController(cfg, g, store, storeWritable(store, loaded))
	if err != nil {
		return err
	}

	fmt.Printf("%d frames, %d identities, mode %s\n", frames.Len(), g.Len(), ctrl.Mode())
	return pipeline.Run(ctx, ctrl, frames, os.Stdin, os.Stdout)
}
