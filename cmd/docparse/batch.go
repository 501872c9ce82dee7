package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/async"
	"github.com/joseph-ayodele/docparse/internal/export"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

var (
	batchSpec          specFlags
	batchWorkers       int
	batchOut           string
	batchWatch         bool
	batchIncludeHidden bool
	batchDebounce      time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Extract every document under DIR into one workbook",
	Long: `batch walks DIR for PDF, JPEG and PNG files, extracts each one and writes a
workbook with one row per document. With --watch it keeps running and also
picks up files created later; the workbook is written on exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchSpec.register(batchCmd)
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "parallel extractions (default: admission.max_concurrent)")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "output XLSX path (default: documents.xlsx next to DIR)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false, "keep watching DIR for new files")
	batchCmd.Flags().BoolVar(&batchIncludeHidden, "include-hidden", false, "include dot files and dot directories")
	batchCmd.Flags().DurationVar(&batchDebounce, "debounce", time.Second, "quiet period before a changed file is processed")
	rootCmd.AddCommand(batchCmd)
}

// rowCollector gathers results from queue workers.
type rowCollector struct {
	mu   sync.Mutex
	rows []export.Row
	spec llm.ExtractionSpec
}

func (c *rowCollector) add(r async.JobResult) {
	row := export.Row{
		Filename:     r.Job.Path,
		DocumentType: c.spec.Label(),
		Err:          r.Err,
	}
	if r.Result != nil {
		row.Outcome = r.Result.Outcome
		row.Record = r.Result.Record
	}
	c.mu.Lock()
	c.rows = append(c.rows, row)
	c.mu.Unlock()
}

func (c *rowCollector) failed(path string, err error) {
	c.add(async.JobResult{Job: async.Job{Path: path}, Err: err})
}

// sorted returns the rows ordered by path so reruns produce the same workbook.
func (c *rowCollector) sorted() []export.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]export.Row(nil), c.rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if batchOut == "" {
		batchOut = filepath.Join(filepath.Dir(filepath.Clean(dir)), "documents.xlsx")
	}
	workers := batchWorkers
	if workers <= 0 {
		workers = int(cfg.Admission.MaxConcurrent)
	}

	spec, err := batchSpec.spec()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack := app.Build(cfg, logger, nil)
	collector := &rowCollector{spec: spec}
	queue := async.NewProcessorQueue(stack.Processor, logger,
		async.WithWorkers(workers),
		async.WithQueueSize(workers*4),
		async.WithProcessTimeout(cfg.Backend.Timeout+30*time.Second),
		async.WithResultHandler(collector.add),
	)

	seen := ingest.NewSeen()
	submit := func(path string) error {
		in, err := ingest.ReadDocument(path, cfg.Server.MaxUploadBytes)
		if err != nil {
			logger.Warn("batch.read_failed", "path", path, "error", err)
			collector.failed(path, err)
			return nil
		}
		if fresh, hash := seen.Mark(path, in.Data); !fresh {
			logger.Info("batch.duplicate_skipped", "path", path, "sha256", hash)
			return nil
		}
		return queue.Enqueue(ctx, async.Job{Path: path, Input: in, Spec: spec})
	}

	if batchWatch {
		err = watchDir(ctx, dir, submit)
	} else {
		err = walkDir(ctx, dir, submit, collector)
	}

	// workers finish what is queued even after an interrupt
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout+time.Minute)
	defer cancel()
	if qerr := queue.Shutdown(drainCtx); qerr != nil {
		logger.Error("batch.drain_failed", "error", qerr)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}

	rows := collector.sorted()
	if len(rows) == 0 {
		logger.Warn("batch.no_documents", "dir", dir)
		return nil
	}
	if werr := writeWorkbook(drainCtx, batchOut, rows); werr != nil {
		return werr
	}
	printSummary(cmd, rows)
	return nil
}

func walkDir(ctx context.Context, dir string, submit func(string) error, collector *rowCollector) error {
	files, stats, err := ingest.Walk(ctx, dir, !batchIncludeHidden)
	if err != nil {
		return err
	}
	logger.Info("batch.walk.done", "dir", dir, "scanned", stats.Scanned, "matched", stats.Matched,
		"skipped", stats.Skipped, "failed", stats.Failed)

	for _, f := range files {
		if f.Err != "" {
			collector.failed(f.Path, errors.New(f.Err))
			continue
		}
		if err := submit(f.Path); err != nil {
			return err
		}
	}
	return nil
}

func watchDir(ctx context.Context, dir string, submit func(string) error) error {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		SkipHidden:  !batchIncludeHidden,
		Debounce:    batchDebounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("batch.watch.started", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if err := submit(p); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error("batch.watch.error", "error", err)
		}
	}
}

func printSummary(cmd *cobra.Command, rows []export.Row) {
	counts := map[string]int{}
	for _, r := range rows {
		switch {
		case r.Err != nil:
			counts["failed"]++
		default:
			counts[string(r.Outcome)]++
		}
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d documents: %d parsed, %d fallback, %d failed -> %s\n",
		len(rows), counts["parsed"], counts["fallback"], counts["failed"], batchOut)
}
