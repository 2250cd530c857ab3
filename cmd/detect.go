package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/detect"
	"github.com/kozaktomas/faceproc/internal/geometry"
	"github.com/kozaktomas/faceproc/internal/logger"
	"github.com/kozaktomas/faceproc/internal/tensor"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Turn raw detector outputs into face boxes",
	Long: `Decode raw detector outputs, drop low scores, suppress overlapping
boxes and map the result back to the pixels of the original image.

Tensors are read from JSON files {"shape": [...], "data": [...]} or from raw
little-endian float32 files together with --boxes-shape / --scores-shape.

Examples:
  # Tiny face detector output for a 640x480 photo
  faceproc detect --boxes out.json --width 640 --height 480

  # Take the image size from the photo itself
  faceproc detect --boxes out.bin --boxes-shape 13,13,25 --image photo.jpg

  # SSD MobileNet with its reference boxes
  faceproc detect --detector ssd_mobilenetv1 --boxes boxes.json --scores scores.json \
    --references priors.json --image photo.jpg --json`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().String("detector", "", "Detector preset (default DETECTOR or tiny_face_detector)")
	detectCmd.Flags().String("boxes", "", "Box tensor file (grid output or SSD offsets)")
	detectCmd.Flags().String("scores", "", "Class score tensor file (SSD only)")
	detectCmd.Flags().IntSlice("boxes-shape", nil, "Shape of a raw box tensor")
	detectCmd.Flags().IntSlice("scores-shape", nil, "Shape of a raw score tensor")
	detectCmd.Flags().String("references", "", "JSON file with the SSD reference boxes [[x1,y1,x2,y2],...]")
	detectCmd.Flags().String("image", "", "Original image, used for its dimensions")
	detectCmd.Flags().Int("width", 0, "Original image width in pixels")
	detectCmd.Flags().Int("height", 0, "Original image height in pixels")
	detectCmd.Flags().Float64("score-threshold", -1, "Override the preset score threshold")
	detectCmd.Flags().Float64("iou-threshold", -1, "Override the preset IoU threshold")
	detectCmd.Flags().Bool("json", false, "Output as JSON")

	_ = detectCmd.MarkFlagRequired("boxes")
}

// detectImageDimensions resolves the original image size from --image or --width/--height.
func detectImageDimensions(cmd *cobra.Command) (geometry.Dimensions, error) {
	if path := mustGetString(cmd, "image"); path != "" {
		f, err := os.Open(path) //nolint:gosec // path is a command line argument
		if err != nil {
			return geometry.Dimensions{}, fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()
		dims, _, err := detect.ImageDimensions(f)
		return dims, err
	}
	dims := geometry.Dimensions{Width: mustGetInt(cmd, "width"), Height: mustGetInt(cmd, "height")}
	if !dims.Valid() {
		return dims, errors.New("--image or positive --width and --height are required")
	}
	return dims, nil
}

// detectPipeline builds the pipeline of the selected preset with the command line overrides.
func detectPipeline(cmd *cobra.Command, cfg *config.Config) (string, *detect.Pipeline, error) {
	name := mustGetString(cmd, "detector")
	if name == "" {
		name = cfg.Detectors.Default
	}
	preset, ok := cfg.Detector(name)
	if !ok {
		return name, nil, fmt.Errorf("unknown detector %q (available: %v)", name, cfg.DetectorNames())
	}

	var references []geometry.Box
	if path := mustGetString(cmd, "references"); path != "" {
		var err error
		if references, err = readBoxes(path); err != nil {
			return name, nil, err
		}
	}

	dc, err := detect.FromPreset(preset, references)
	if err != nil {
		return name, nil, fmt.Errorf("detector %s: %w", name, err)
	}
	if t := mustGetFloat64(cmd, "score-threshold"); t >= 0 {
		dc.ScoreThreshold = t
	}
	if t := mustGetFloat64(cmd, "iou-threshold"); t >= 0 {
		dc.IoUThreshold = t
	}
	p, err := detect.NewPipeline(dc)
	return name, p, err
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logger.Get()

	name, pipeline, err := detectPipeline(cmd, cfg)
	if err != nil {
		return err
	}
	dims, err := detectImageDimensions(cmd)
	if err != nil {
		return err
	}

	boxes, err := readTensor(mustGetString(cmd, "boxes"), mustGetIntSlice(cmd, "boxes-shape"))
	if err != nil {
		return fmt.Errorf("box tensor: %w", err)
	}
	var scores tensor.Tensor
	if path := mustGetString(cmd, "scores"); path != "" {
		if scores, err = readTensor(path, mustGetIntSlice(cmd, "scores-shape")); err != nil {
			return fmt.Errorf("score tensor: %w", err)
		}
	}

	detections, err := pipeline.LocateFaces(boxes, scores, dims)
	if err != nil {
		return fmt.Errorf("failed to locate faces: %w", err)
	}
	log.Debug("faces located",
		zap.String("detector", name),
		zap.Int("width", dims.Width),
		zap.Int("height", dims.Height),
		zap.Int("count", len(detections)))

	if mustGetBool(cmd, "json") {
		return writeJSON(cmd.OutOrStdout(), detections)
	}

	if len(detections) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No faces found.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSCORE\tX\tY\tWIDTH\tHEIGHT")
	for i, d := range detections {
		fmt.Fprintf(w, "%d\t%.3f\t%.1f\t%.1f\t%.1f\t%.1f\n", i+1, d.Score, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height)
	}
	return w.Flush()
}
