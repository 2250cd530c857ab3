package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/constants"
	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <descriptor-file>...",
	Short: "Add labeled face descriptors to the gallery",
	Long: `Add descriptors to the gallery. The label is taken from --label or from the
file name without extension, so "jan-novak.json" enrolls "jan-novak".

The gallery is stored in PostgreSQL when DATABASE_URL is set, otherwise in the
GALLERY_PATH file.

Examples:
  faceproc enroll people/*.json
  faceproc enroll --label "Jan Novák" --replace jan.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("label", "", "Label for the descriptors (single file only)")
	enrollCmd.Flags().Bool("replace", false, "Replace the label's existing descriptors")
	enrollCmd.Flags().String("source", constants.SourceCLI, "Source recorded with stored descriptors")
}

// readEnrollment reads the labeled descriptors of each file, merging files with the same label.
func readEnrollment(files []string, label string) ([]facematch.LabeledDescriptors, error) {
	if label != "" && len(files) > 1 {
		return nil, errors.New("--label can only be used with a single file")
	}

	index := make(map[string]int)
	var labeled []facematch.LabeledDescriptors
	for _, path := range files {
		descriptors, err := readDescriptors(path)
		if err != nil {
			return nil, err
		}
		l := strings.TrimSpace(label)
		if l == "" {
			l = labelFromPath(path)
		}
		ld, err := facematch.NewLabeledDescriptors(l, descriptors)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if i, ok := index[ld.Label]; ok {
			labeled[i].Descriptors = append(labeled[i].Descriptors, ld.Descriptors...)
			continue
		}
		index[ld.Label] = len(labeled)
		labeled = append(labeled, ld)
	}
	return labeled, nil
}

// enrollStore saves the labeled descriptors to the database.
func enrollStore(ctx context.Context, store database.DescriptorWriter, ld facematch.LabeledDescriptors, replace bool, source string) (int, error) {
	if replace {
		if _, err := store.DeleteLabel(ctx, ld.Label); err != nil {
			return 0, fmt.Errorf("replace label %q: %w", ld.Label, err)
		}
	}
	ids, err := store.Save(ctx, database.FromLabeled([]facematch.LabeledDescriptors{ld}, source))
	if err != nil {
		return 0, fmt.Errorf("save label %q: %w", ld.Label, err)
	}
	return len(ids), nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logger.Get()
	ctx := cmd.Context()

	labeled, err := readEnrollment(args, mustGetString(cmd, "label"))
	if err != nil {
		return err
	}

	g, err := openGallery(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer g.Close()
	if !g.writable() {
		return errNoGallery
	}

	replace := mustGetBool(cmd, "replace")
	source := mustGetString(cmd, "source")
	bar := newFileProgressBar(len(labeled), "Enrolling labels", false)

	m := g.matcher
	total := 0
	for _, ld := range labeled {
		if dim := m.Dimension(); dim > 0 && len(ld.Descriptors[0]) != dim {
			return fmt.Errorf("label %q: descriptors have length %d, gallery uses %d", ld.Label, len(ld.Descriptors[0]), dim)
		}
		if g.store != nil {
			n, err := enrollStore(ctx, g.store, ld, replace, source)
			if err != nil {
				return err
			}
			total += n
		} else {
			if m, err = mergeLabeled(m, ld, replace); err != nil {
				return fmt.Errorf("label %q: %w", ld.Label, err)
			}
			total += len(ld.Descriptors)
		}
		log.Debug("label enrolled", zap.String("label", ld.Label), zap.Int("descriptors", len(ld.Descriptors)))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	if g.store == nil {
		if err := writeGalleryFile(g.path, m); err != nil {
			return err
		}
	}
	g.changed(log)

	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %d descriptors for %d labels.\n", total, len(labeled))
	return nil
}
