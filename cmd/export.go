package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the gallery as persisted matcher JSON",
	Long: `Write the gallery in the persisted matcher format
{"distanceThreshold": 0.6, "labeledDescriptors": [{"label": .., "descriptors": [..]}]}.

With --index the HNSW graph of the gallery is written as well.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().String("index", "", "Also write the HNSW index to this file")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	g, err := openGallery(cmd.Context(), cfg, logger.Get())
	if err != nil {
		return err
	}
	defer g.Close()

	if out := mustGetString(cmd, "out"); out != "" {
		if err := writeGalleryFile(out, g.matcher); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d labels to %s\n", g.matcher.Len(), out)
	} else {
		text, err := g.matcher.ToPersisted()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}

	if path := mustGetString(cmd, "index"); path != "" {
		idx := facematch.BuildIndex(g.matcher)
		if err := idx.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote HNSW index of %d descriptors to %s\n", idx.Len(), path)
	}
	return nil
}
