package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the labels in the gallery",
	RunE:  runLabels,
}

var labelsRmCmd = &cobra.Command{
	Use:   "rm <label>",
	Short: "Remove a label and its descriptors from the gallery",
	Long: `Remove a label from the gallery. The label is looked up ignoring case and
diacritics, so "jan novak" removes "Jan Novák".`,
	Args: cobra.ExactArgs(1),
	RunE: runLabelsRm,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
	labelsCmd.AddCommand(labelsRmCmd)

	labelsCmd.Flags().Bool("json", false, "Output as JSON")
}

// summarize counts the descriptors per label of a matcher.
func summarize(m *facematch.Matcher) []database.LabelSummary {
	labeled := m.LabeledDescriptors()
	labels := make([]database.LabelSummary, len(labeled))
	for i, ld := range labeled {
		labels[i] = database.LabelSummary{Label: ld.Label, Count: len(ld.Descriptors), Dim: m.Dimension()}
	}
	return labels
}

// resolveLabel returns the stored label that matches name after normalization.
func resolveLabel(m *facematch.Matcher, name string) (string, bool) {
	want := facematch.NormalizeLabel(name)
	for _, label := range m.Labels() {
		if label == name {
			return label, true
		}
	}
	for _, label := range m.Labels() {
		if facematch.NormalizeLabel(label) == want {
			return label, true
		}
	}
	return "", false
}

func runLabels(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	g, err := openGallery(cmd.Context(), cfg, logger.Get())
	if err != nil {
		return err
	}
	defer g.Close()

	labels := summarize(g.matcher)
	if mustGetBool(cmd, "json") {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"labels": labels})
	}
	if len(labels) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "The gallery is empty.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tDESCRIPTORS\tLENGTH")
	for _, l := range labels {
		fmt.Fprintf(w, "%s\t%d\t%d\n", l.Label, l.Count, l.Dim)
	}
	return w.Flush()
}

func runLabelsRm(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logger.Get()
	ctx := cmd.Context()

	g, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close()
	if !g.writable() {
		return errNoGallery
	}

	label, ok := resolveLabel(g.matcher, args[0])
	if !ok {
		return fmt.Errorf("label %q not found", args[0])
	}

	removed := 0
	if g.store != nil {
		if removed, err = g.store.DeleteLabel(ctx, label); err != nil {
			return err
		}
	} else {
		descriptors, _ := g.matcher.DescriptorsFor(label)
		removed = len(descriptors)
		m, _, err := g.matcher.WithoutLabel(label)
		if err != nil {
			return err
		}
		if err := writeGalleryFile(g.path, m); err != nil {
			return err
		}
	}

	g.changed(log)
	log.Info("label removed", zap.String("label", label), zap.Int("descriptors", removed))
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %q (%d descriptors).\n", label, removed)
	return nil
}
