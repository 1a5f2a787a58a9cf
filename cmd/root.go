package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "face-id",
	Short: "Face alignment, enrollment and recognition against a local gallery",
	Long: `face-id aligns detected faces to a canonical pose, enrolls named identities
by averaging several shots, and recognizes faces against the enrolled gallery.

Detection and embedding run on an external inference server (DETECTOR_URL,
EMBEDDING_URL). The gallery is stored in a JSON file by default, or in
PostgreSQL/MariaDB (GALLERY_BACKEND).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if err := logging.Setup(config.Load().Log); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
