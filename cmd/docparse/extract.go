package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

var (
	extractSpec specFlags
	extractXLSX string
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Extract fields from one document and print them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractSpec.register(extractCmd)
	extractCmd.Flags().StringVar(&extractXLSX, "xlsx", "", "also write the result to this workbook")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = common.WithRequestID(ctx, uuid.New().String())

	spec, err := extractSpec.spec()
	if err != nil {
		return err
	}
	in, err := ingest.ReadDocument(args[0], cfg.Server.MaxUploadBytes)
	if err != nil {
		return err
	}

	stack := app.Build(cfg, logger, nil)
	res, err := stack.Processor.Run(ctx, in, spec)
	if err != nil {
		return err
	}

	out, err := llm.MarshalRecord(res.Record)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), pretty.String()); err != nil {
		return err
	}

	if extractXLSX != "" {
		return writeWorkbook(ctx, extractXLSX, []export.Row{{
			Filename:     in.Filename,
			DocumentType: spec.Label(),
			Outcome:      res.Outcome,
			Record:       res.Record,
		}})
	}
	return nil
}

func writeWorkbook(ctx context.Context, path string, rows []export.Row) error {
	data, err := export.NewService(logger).WorkbookXLSX(ctx, rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("export.written", "path", path, "rows", len(rows))
	return nil
}
