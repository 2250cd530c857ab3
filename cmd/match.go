package cmd

import (
	"fmt"
	"math"
	"sync"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/constants"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
)

var matchCmd = &cobra.Command{
	Use:   "match <descriptor-file>...",
	Short: "Match face descriptors against the gallery",
	Long: `Match every descriptor in the given files against the labeled gallery and
print the closest label, or "unknown" when nothing is within the distance threshold.

A file holds one descriptor [..], a list [[..], ..] or {"descriptors": [..]}.
Use "-" to read from stdin.

Examples:
  faceproc match face.json
  faceproc match --threshold 0.5 --json faces/*.json
  faceproc match --ann --candidates 20 faces/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Distance threshold (default MATCH_DISTANCE_THRESHOLD or 0.6)")
	matchCmd.Flags().Bool("ann", false, "Use the HNSW index instead of the exhaustive search")
	matchCmd.Flags().Int("candidates", facematch.IndexSearchCandidates, "Graph neighbors re-ranked per query with --ann")
	matchCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "Number of files processed in parallel")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// bestMatcher is satisfied by both the exhaustive matcher and the HNSW index.
type bestMatcher interface {
	FindBestMatch(query facematch.Descriptor) (facematch.Match, error)
}

// matchResult is the outcome for one descriptor of an input file.
type matchResult struct {
	File  string          `json:"file"`
	Index int             `json:"index"`
	Match facematch.Match `json:"match"`
}

// matchFile matches every descriptor of one file.
func matchFile(finder bestMatcher, path string) ([]matchResult, error) {
	descriptors, err := readDescriptors(path)
	if err != nil {
		return nil, err
	}
	results := make([]matchResult, 0, len(descriptors))
	for i, d := range descriptors {
		m, err := finder.FindBestMatch(d)
		if err != nil {
			return nil, fmt.Errorf("%s descriptor %d: %w", path, i, err)
		}
		results = append(results, matchResult{File: path, Index: i, Match: m})
	}
	return results, nil
}

// matchFilesConcurrently matches the files with a bounded number of workers.
// Results keep the order of files.
func matchFilesConcurrently(finder bestMatcher, files []string, concurrency int, bar *progressbar.ProgressBar) ([]matchResult, []error) {
	perFile := make([][]matchResult, len(files))
	var errs []error
	var mu sync.Mutex
	sem := make(chan struct{}, max(concurrency, 1))
	var wg sync.WaitGroup

	for i := range files {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := matchFile(finder, path)
			mu.Lock()
			if err != nil {
				errs = append(errs, err)
			} else {
				perFile[idx] = results
			}
			mu.Unlock()

			if bar != nil {
				_ = bar.Add(1)
			}
		}(i, files[i])
	}
	wg.Wait()

	var all []matchResult
	for _, results := range perFile {
		all = append(all, results...)
	}
	return all, errs
}

// newFileProgressBar creates a progress bar over input files, or nil for JSON output
// and single files.
func newFileProgressBar(count int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet || count < 2 {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// matchFinder returns the exhaustive matcher or, with --ann, an HNSW index over it.
// The index is loaded from and saved to HNSW_INDEX_PATH when set.
func matchFinder(cmd *cobra.Command, m *facematch.Matcher, indexPath string, log *zap.Logger) bestMatcher {
	if !mustGetBool(cmd, "ann") {
		return m
	}

	var idx *facematch.Index
	if indexPath != "" {
		loaded, err := facematch.LoadIndex(indexPath, m)
		if err != nil {
			log.Warn("failed to load HNSW index, rebuilding", zap.String("path", indexPath), zap.Error(err))
		} else {
			idx = loaded
		}
	}
	if idx == nil {
		idx = facematch.BuildIndex(m)
		if indexPath != "" {
			if err := idx.Save(indexPath); err != nil {
				log.Warn("failed to save HNSW index", zap.String("path", indexPath), zap.Error(err))
			}
		}
	}
	idx.SetCandidates(mustGetInt(cmd, "candidates"))
	return idx
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logger.Get()
	jsonOutput := mustGetBool(cmd, "json")

	g, err := openGallery(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer g.Close()

	m, err := g.withThreshold(mustGetFloat64(cmd, "threshold"))
	if err != nil {
		return err
	}
	finder := matchFinder(cmd, m, cfg.Matcher.IndexPath, log)

	bar := newFileProgressBar(len(args), "Matching descriptors", jsonOutput)
	results, errs := matchFilesConcurrently(finder, args, mustGetInt(cmd, "concurrency"), bar)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), map[string]any{"results": results, "threshold": m.Threshold()}); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\t#\tLABEL\tDISTANCE")
		for _, r := range results {
			distance := "-"
			if !math.IsInf(r.Match.Distance, 0) {
				distance = fmt.Sprintf("%.4f", r.Match.Distance)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.File, r.Index, r.Match.Label, distance)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return fmt.Errorf("%d of %d files failed", len(errs), len(args))
	}
	return nil
}
