package cmd

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/kozaktomas/faceproc/internal/detect"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <image>",
	Short: "Letterbox an image to the detector input size",
	Long: `Pad an image to a square with black pixels on the right or bottom and scale it
to the detector input size. The printed padding factors are what detect uses
to map boxes back to the original image.

The output format follows the extension of --out: png, jpg, bmp or tiff.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	prepareCmd.Flags().String("detector", "", "Detector preset whose input size is used")
	prepareCmd.Flags().Int("size", 0, "Input size in pixels (overrides the preset)")
	prepareCmd.Flags().Int("border", 0, "Black border kept around the scaled image")
	prepareCmd.Flags().StringP("out", "o", "", "Output image file")

	_ = prepareCmd.MarkFlagRequired("out")
}

// encodeImage writes img in the format named by the file extension.
func encodeImage(w io.Writer, img image.Image, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return png.Encode(w, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}
}

// prepareInputSize resolves --size or the input size of the detector preset.
func prepareInputSize(cmd *cobra.Command, presetSize func(string) (int, bool), defaultDetector string) (int, error) {
	if size := mustGetInt(cmd, "size"); size > 0 {
		return size, nil
	}
	name := mustGetString(cmd, "detector")
	if name == "" {
		name = defaultDetector
	}
	size, ok := presetSize(name)
	if !ok {
		return 0, fmt.Errorf("unknown detector %q", name)
	}
	return size, nil
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	size, err := prepareInputSize(cmd, func(name string) (int, bool) {
		preset, ok := cfg.Detector(name)
		return preset.InputSize, ok && preset.InputSize > 0
	}, cfg.Detectors.Default)
	if err != nil {
		return err
	}

	in, err := os.Open(args[0]) //nolint:gosec // path is a command line argument
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer in.Close()
	img, err := detect.DecodeImage(in)
	if err != nil {
		return err
	}

	prepared, err := detect.PrepareInput(img, size, mustGetInt(cmd, "border"))
	if err != nil {
		return err
	}

	outPath := mustGetString(cmd, "out")
	out, err := os.Create(outPath) //nolint:gosec // path is a command line argument
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := encodeImage(out, prepared, outPath); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	b := img.Bounds()
	padding := detect.RelativePadding(b.Dx(), b.Dy())
	fmt.Fprintf(cmd.OutOrStdout(), "%dx%d -> %dx%d, padding x=%.4f y=%.4f\n",
		b.Dx(), b.Dy(), size, size, padding.X, padding.Y)
	return nil
}
