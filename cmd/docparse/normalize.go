package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/imaging"
	"github.com/joseph-ayodele/docparse/internal/ingest"
)

var normalizeOut string

var normalizeCmd = &cobra.Command{
	Use:   "normalize FILE",
	Short: "Write the raster that would be sent to the model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := ingest.ReadDocument(args[0], cfg.Server.MaxUploadBytes)
		if err != nil {
			return err
		}
		norm := imaging.NewNormalizer(app.NormalizerConfig(cfg.Image), imaging.WithLogger(logger))
		img, err := norm.Normalize(in.Data, in.ContentType)
		if err != nil {
			return err
		}

		out := normalizeOut
		if out == "" {
			out = strings.TrimSuffix(in.Filename, filepath.Ext(in.Filename)) + ".normalized." + string(img.Format)
		}
		if err := os.WriteFile(out, img.Encoded, 0o644); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, %d bytes\n", out, img.Width, img.Height, img.MIMEType, len(img.Encoded))
		return err
	},
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeOut, "output", "o", "", "output path")
	rootCmd.AddCommand(normalizeCmd)
}
