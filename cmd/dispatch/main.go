// Command dispatch sends one CSV batch from the command line and prints the
// per-recipient outcomes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/textdispatch/internal/app"
	"github.com/ignite/textdispatch/internal/config"
	"github.com/ignite/textdispatch/internal/datanorm"
	"github.com/ignite/textdispatch/internal/domain"
)

type options struct {
	configPath string
	csvPath    string
	templates  domain.Templates
	dryRun     bool
	preview    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config file (empty uses defaults)")
	flag.StringVar(&opts.csvPath, "csv", "", "recipient CSV file (required)")
	flag.StringVar(&opts.templates.A, "template-a", "", "message template A (required)")
	flag.StringVar(&opts.templates.B, "template-b", "", "optional template B for an A/B split")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "render and log without sending")
	flag.BoolVar(&opts.preview, "preview", false, "print the rendered messages and exit")
	flag.Parse()

	if opts.csvPath == "" || opts.templates.A == "" {
		flag.Usage()
		os.Exit(2)
	}

	// run owns every deferred cleanup; exit only after it has returned.
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.LoadFromEnv(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.dryRun {
		cfg.Dispatch.DryRun = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Close()

	f, err := os.Open(opts.csvPath)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	recipients, err := datanorm.NewImporter(a.Phones).ImportFromReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("import csv: %w", err)
	}

	if err := a.Composer.ValidateTemplates(opts.templates); err != nil {
		return fmt.Errorf("template: %w", err)
	}
	messages, summary := a.Composer.Preview(recipients, opts.templates)

	fmt.Println("=========================================================")
	fmt.Printf(" Batch: %d rows, %d ready, %d with errors\n", summary.Total, summary.OK, summary.Errors)
	fmt.Println("=========================================================")
	if opts.preview {
		printPreview(messages)
		return nil
	}

	report, err := dispatchBatch(ctx, a, messages)
	if report != nil {
		printReport(report)
	}
	return err
}

// dispatchBatch runs messages under the dispatch lock. The lock is released
// on every return path.
func dispatchBatch(ctx context.Context, a *app.App, messages []domain.RenderedMessage) (*domain.BatchReport, error) {
	lock := a.NewLock()
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another dispatch is already running")
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			fmt.Fprintf(os.Stderr, "WARN: release dispatch lock: %v\n", err)
		}
	}()

	report, err := a.Orchestrator.Run(ctx, uuid.NewString(), messages, a.SendDefaults())
	if err != nil {
		return report, fmt.Errorf("dispatch: %w", err)
	}
	return report, nil
}

func printPreview(messages []domain.RenderedMessage) {
	for _, m := range messages {
		if m.Error != "" {
			fmt.Printf("%4d  %-14s  ERROR %s\n", m.Index, m.Phone(), m.Error)
			continue
		}
		fmt.Printf("%4d  %-14s  [%s] %s\n", m.Index, m.Phone(), m.Variant, m.Text)
	}
}

func printReport(r *domain.BatchReport) {
	fmt.Println("---------------------------------------------------------")
	for _, res := range r.Results {
		mark := "✗"
		if res.OK {
			mark = "✓"
		}
		detail := string(res.Status)
		if res.Service != "" {
			detail += " via " + res.Service
		}
		if res.Error != "" {
			detail += ": " + res.Error
		}
		fmt.Printf("%s %4d  %-14s  %s\n", mark, res.Index, res.Phone, detail)
	}
	fmt.Println("---------------------------------------------------------")
	fmt.Printf("Succeeded: %d  Failed: %d  Duration: %s\n",
		r.Succeeded, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	if r.Cancelled {
		fmt.Println("Batch was cancelled before every recipient was processed")
	}
	if r.LogName != "" {
		fmt.Printf("Log: %s\n", r.LogName)
	}
}
