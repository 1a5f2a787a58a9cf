package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect the identity gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one identity and its embedding",
	Long: `Show one identity and its embedding.

The name is matched exactly first, then ignoring case and diacritics, so
"jiri" finds "Jiří".`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryShow,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryShowCmd)

	galleryListCmd.Flags().Bool("json", false, "Output as JSON")
	galleryShowCmd.Flags().Bool("json", false, "Output as JSON")
}

// GalleryListResult is the JSON form of gallery list.
type GalleryListResult struct {
	Backend    string   `json:"backend"`
	Dim        int      `json:"dim"`
	Count      int      `json:"count"`
	Identities []string `json:"identities"`
}

// IdentityResult is the JSON form of gallery show.
type IdentityResult struct {
	Name      string    `json:"name"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

// galleryView is a read-only handle on the configured gallery.
type galleryView struct {
	backend string
	gallery *gallery.Gallery
	store   database.GalleryStore
	close   func()
}

// openGallery loads the gallery for inspection. Unlike the long-running
// commands it fails on load errors instead of starting empty.
func openGallery(ctx context.Context) (*galleryView, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	g, err := gallery.Load(ctx, store)
	if err != nil {
		closeStore()
		return nil, err
	}
	return &galleryView{backend: cfg.Gallery.Backend, gallery: g, store: store, close: closeStore}, nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()

	view, err := openGallery(ctx)
	if err != nil {
		return err
	}
	defer view.close()

	g := view.gallery
	names := g.Names()
	if jsonOutput {
		return outputJSON(GalleryListResult{
			Backend:    view.backend,
			Dim:        g.Dim(),
			Count:      len(names),
			Identities: names,
		})
	}

	if len(names) == 0 {
		fmt.Println("Gallery is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tDIM")
	fmt.Fprintln(w, "-\t----\t---")
	for i, name := range names {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, name, g.Dim())
	}
	w.Flush()

	fmt.Printf("\n%d identities", len(names))
	if counter, ok := view.store.(database.IdentityCounter); ok {
		if stored, err := counter.Count(ctx); err == nil {
			fmt.Printf(" (%d rows in database)", stored)
		}
	}
	fmt.Println()
	return nil
}

func runGalleryShow(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	view, err := openGallery(context.Background())
	if err != nil {
		return err
	}
	defer view.close()

	name, emb, ok := view.gallery.Find(args[0])
	if !ok {
		return fmt.Errorf("identity %q not found", args[0])
	}

	if jsonOutput {
		return outputJSON(IdentityResult{Name: name, Dim: len(emb), Embedding: emb})
	}

	fmt.Printf("Name:      %s\n", name)
	fmt.Printf("Dimension: %d\n", len(emb))
	fmt.Printf("Embedding:")
	for i, v := range emb {
		if i%8 == 0 {
			fmt.Printf("\n  ")
		}
		fmt.Printf("%9.5f ", v)
	}
	fmt.Println()
	return nil
}
