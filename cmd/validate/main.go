// Command validate checks local invoice files and prints the results as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/qrinvoicevalidator/internal/models"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/pipeline"
	"github.com/Lllllllleong/qrinvoicevalidator/internal/services"
)

type options struct {
	paths  []string
	outDir string
	config services.Config
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	config, err := services.LoadConfig()
	if err != nil {
		return options{}, err
	}

	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: validate [flags] <file>...\n")
		fs.PrintDefaults()
	}
	tolerance := fs.Float64("tolerance", config.TolerancePercent, "Tolerance for the total, in percent of the code total (0-100)")
	workers := fs.Int("workers", config.BatchWorkers, "Documents processed concurrently")
	recognizer := fs.String("recognizer", config.Recognizer, "Text recognizer: tesseract or vertex")
	selector := fs.String("total", config.TotalSelector, "Total heuristic: last or largest amount in the text")
	pdftoppm := fs.String("pdftoppm", config.PdftoppmPath, "pdftoppm binary used to rasterize PDF pages; empty disables it")
	outDir := fs.String("out", "", "Directory for stamped copies of validated documents")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return options{}, fmt.Errorf("no input files")
	}

	config.TolerancePercent = *tolerance
	config.BatchWorkers = *workers
	config.Recognizer = strings.ToLower(*recognizer)
	config.TotalSelector = strings.ToLower(*selector)
	config.PdftoppmPath = *pdftoppm
	if err := config.Validate(); err != nil {
		return options{}, err
	}
	return options{paths: fs.Args(), outDir: *outDir, config: config}, nil
}

func run(opts options) error {
	logger := services.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	coord, closeCoord, err := services.NewCoordinator(ctx, opts.config)
	if err != nil {
		return err
	}
	defer closeCoord()

	docs := make([]pipeline.Document, 0, len(opts.paths))
	for _, path := range opts.paths {
		docs = append(docs, pipeline.Document{
			Source: pipeline.Source{Name: path, MediaType: services.MediaTypeOf(path, "")},
			Open: func(context.Context) ([]byte, error) {
				return os.ReadFile(path)
			},
		})
	}

	results, batchErr := coord.ProcessBatch(ctx, docs, opts.config.TolerancePercent, func(completed, total int) {
		fmt.Fprintf(os.Stderr, "[%d/%d] done\n", completed, total)
	})
	if batchErr != nil && ctx.Err() == nil {
		return batchErr
	}

	if opts.outDir != "" {
		if err := writeValidated(context.WithoutCancel(ctx), coord, opts.outDir, results); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	summary := models.Summarize(results)
	status := "success"
	if batchErr != nil {
		status = "cancelled"
	}
	if err := enc.Encode(models.BatchResponse{Status: status, Results: results, Summary: summary}); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return batchErr
}

func writeValidated(ctx context.Context, coord *pipeline.Coordinator, outDir string, results []models.DocumentResult) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for i := range results {
		res := &results[i]
		if res.Status != models.StatusValidated {
			continue
		}
		data, err := os.ReadFile(res.FileName)
		if err != nil {
			return fmt.Errorf("reload %s: %w", res.FileName, err)
		}
		src := pipeline.Source{Name: res.FileName, MediaType: services.MediaTypeOf(res.FileName, ""), Data: data}
		dest := filepath.Join(outDir, filepath.Base(res.OutputName))
		if err := os.WriteFile(dest, coord.Stamp(ctx, src, res), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", dest)
	}
	return nil
}
