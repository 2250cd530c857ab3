package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var importCmd = &cobra.Command{
	Use:   "import <matcher-file>",
	Short: "Load a persisted matcher into the gallery",
	Long: `Load a persisted matcher JSON file into the gallery. Labels present in the file
replace the stored labels of the same name; other stored labels are kept.

Without DATABASE_URL the file replaces the GALLERY_PATH gallery.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := cmd.Context()

	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	m, err := facematch.FromPersisted(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	log := logger.Get()
	g, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close()

	switch {
	case g.store != nil:
		n, err := database.ImportMatcher(ctx, g.store, m, labelFromPath(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d descriptors for %d labels.\n", n, m.Len())
	case g.path != "":
		if err := writeGalleryFile(g.path, m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d labels to %s.\n", m.Len(), g.path)
	default:
		return errNoGallery
	}
	g.changed(log)
	return nil
}
