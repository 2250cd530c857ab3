package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceproc/internal/nms"
)

var nmsCmd = &cobra.Command{
	Use:   "nms <file>",
	Short: "Run non-maximum suppression over scored boxes",
	Long: `Run greedy non-maximum suppression over a JSON file
{"boxes": [[x1,y1,x2,y2], ...], "scores": [...]} and print the indices of
the kept boxes, best score first.`,
	Args: cobra.ExactArgs(1),
	RunE: runNMS,
}

func init() {
	rootCmd.AddCommand(nmsCmd)

	nmsCmd.Flags().Float64("iou", 0.5, "Suppress boxes overlapping a kept box by at least this much")
	nmsCmd.Flags().Float64("score-threshold", -1, "Drop boxes scoring at or below this value first")
	nmsCmd.Flags().String("overlap", "union", "Overlap measure: union or min")
	nmsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runNMS(cmd *cobra.Command, args []string) error {
	loadConfig(cmd)

	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	var in struct {
		Boxes  [][]float64 `json:"boxes"`
		Scores []float64   `json:"scores"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("invalid input %s: %w", args[0], err)
	}
	boxes, err := toBoxes(in.Boxes)
	if err != nil {
		return err
	}

	opts := nms.Options{IoUThreshold: mustGetFloat64(cmd, "iou")}
	switch overlap := mustGetString(cmd, "overlap"); overlap {
	case "union":
		opts.Overlap = nms.OverlapUnion
	case "min":
		opts.Overlap = nms.OverlapMin
	default:
		return fmt.Errorf("unknown overlap %q, use union or min", overlap)
	}
	if t := mustGetFloat64(cmd, "score-threshold"); t >= 0 {
		opts.FilterByScore = true
		opts.ScoreThreshold = t
	}

	kept, err := nms.Suppress(boxes, in.Scores, opts)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return writeJSON(cmd.OutOrStdout(), map[string][]int{"indices": kept})
	}
	for _, idx := range kept {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.4f\n", idx, in.Scores[idx])
	}
	return nil
}
