package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-jobpipe/internal/bootstrap"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	apperrors "github.com/target/mmk-jobpipe/internal/errors"
	"github.com/target/mmk-jobpipe/internal/service"
)

const defaultCommandTimeout = 2 * time.Minute

type jobStatusOptions struct {
	JobID   string
	DocID   string
	RawJSON bool
}

type redriveOptions struct {
	JobID      string
	StaleAfter time.Duration
	Limit      int
}

type deadLetterOptions struct {
	Limit int
}

// withBackends opens the configured store and queue for one command. Migrations
// are left to the migrate command.
func withBackends(cmdCtx *commandContext, f func(context.Context, *bootstrap.Backends) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	cfg := cmdCtx.Config
	cfg.Postgres.RunMigrationsOnStart = false

	backends, err := bootstrap.OpenBackends(ctx, bootstrap.BackendsConfig{Config: &cfg, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backends.Close(context.Background()); cerr != nil {
			cmdCtx.Logger.Warn("close backends failed", "error", cerr)
		}
	}()

	return f(ctx, backends)
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobStatusFlags(args)
	if err != nil {
		return err
	}

	return withBackends(cmdCtx, func(ctx context.Context, b *bootstrap.Backends) error {
		var job *model.Job
		var getErr error
		if opts.JobID != "" {
			job, getErr = b.Store.GetJob(ctx, opts.JobID)
		} else {
			job, getErr = b.Store.GetJobByDocID(ctx, opts.DocID)
		}
		if apperrors.IsNotFound(getErr) {
			return errors.New("job not found")
		}
		if getErr != nil {
			return getErr
		}

		if opts.RawJSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}
		return printJob(cmdCtx.Out, job)
	})
}

func runRedrive(cmdCtx *commandContext, args []string) error {
	opts, err := parseRedriveFlags(args)
	if err != nil {
		return err
	}

	return withBackends(cmdCtx, func(ctx context.Context, b *bootstrap.Backends) error {
		if opts.JobID != "" {
			return redriveOne(ctx, cmdCtx, b, opts.JobID)
		}

		redriverCfg := cmdCtx.Config.Redriver
		redriverCfg.StaleAfter = opts.StaleAfter
		redriverCfg.BatchSize = opts.Limit
		redriver, rErr := service.NewRedriver(service.RedriverOptions{
			Store:  b.Store,
			Queue:  b.Queue,
			Config: redriverCfg,
			Logger: cmdCtx.Logger,
		})
		if rErr != nil {
			return rErr
		}

		n, rErr := redriver.RedriveOnce(ctx)
		if wErr := writef(cmdCtx.Out, "re-enqueued %d stale job(s)\n", n); wErr != nil {
			return errors.Join(rErr, wErr)
		}
		return rErr
	})
}

func redriveOne(ctx context.Context, cmdCtx *commandContext, b *bootstrap.Backends, jobID string) error {
	job, err := b.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{Store: b.Store, Queue: b.Queue, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	if err := jobs.Dispatch(ctx, jobID); err != nil {
		return err
	}
	return writef(cmdCtx.Out, "re-enqueued job %s\n", jobID)
}

func runDeadLetters(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeadLetterFlags(args)
	if err != nil {
		return err
	}

	return withBackends(cmdCtx, func(ctx context.Context, b *bootstrap.Backends) error {
		dead, listErr := b.Queue.DeadLetters(ctx, opts.Limit)
		if listErr != nil {
			return listErr
		}
		return printDeadLetters(cmdCtx.Out, dead)
	})
}

func runRequeueDead(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: jobpipe-admin requeue-dead <task-id>")
	}
	taskID := strings.TrimSpace(args[0])

	return withBackends(cmdCtx, func(ctx context.Context, b *bootstrap.Backends) error {
		if err := b.Queue.RequeueDead(ctx, taskID); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "requeued task %s\n", taskID)
	})
}

func printJob(w io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Job ID", job.ID},
		{"Doc ID", job.DocID},
		{"Status", string(job.Status)},
		{"Step", derefStep(job.CurrentStep)},
		{"Webhook", job.WebhookURL},
		{"Delivery attempts", fmt.Sprint(job.DeliveryAttempts)},
		{"Delivery ID", deref(job.DeliveryID)},
		{"Delivered at", formatTime(job.DeliveredAt)},
		{"Dispatch task", deref(job.DispatchTaskID)},
		{"Created", job.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated", job.UpdatedAt.UTC().Format(time.RFC3339)},
		{"Completed", formatTime(job.CompletedAt)},
	}
	if job.ErrorMessage != nil {
		rows = append(rows, [2]string{"Error", *job.ErrorMessage})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	if len(job.Result) > 0 {
		if _, err := fmt.Fprintf(tw, "Result:\t%s\n", string(job.Result)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printDeadLetters(w io.Writer, dead []core.DeadLetter) error {
	if len(dead) == 0 {
		return writef(w, "no dead-lettered tasks\n")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TASK ID\tJOB ID\tDELIVERIES\tFAILED AT\tLAST ERROR"); err != nil {
		return err
	}
	for _, d := range dead {
		failedAt := "-"
		if !d.FailedAt.IsZero() {
			failedAt = d.FailedAt.UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			d.TaskID, d.JobID, d.Deliveries, failedAt, d.LastError); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func parseJobStatusFlags(args []string) (jobStatusOptions, error) {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobStatusOptions
	fs.StringVar(&opts.JobID, "id", "", "Job id")
	fs.StringVar(&opts.DocID, "doc-id", "", "Caller-supplied doc_id")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the stored job as JSON")

	if err := fs.Parse(args); err != nil {
		return jobStatusOptions{}, err
	}
	if opts.JobID == "" && fs.NArg() == 1 {
		opts.JobID = fs.Arg(0)
	}
	if (opts.JobID == "") == (opts.DocID == "") {
		return jobStatusOptions{}, errors.New("exactly one of --id or --doc-id is required")
	}
	return opts, nil
}

func parseRedriveFlags(args []string) (redriveOptions, error) {
	fs := flag.NewFlagSet("redrive", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts redriveOptions
	fs.StringVar(&opts.JobID, "id", "", "Re-enqueue only this job")
	fs.DurationVar(&opts.StaleAfter, "stale-after", 15*time.Minute, "Minimum age of the last update for a job to count as stale")
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum number of jobs to re-enqueue")

	if err := fs.Parse(args); err != nil {
		return redriveOptions{}, err
	}
	if opts.Limit <= 0 {
		return redriveOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.StaleAfter <= 0 {
		return redriveOptions{}, errors.New("--stale-after must be greater than zero")
	}
	return opts, nil
}

func parseDeadLetterFlags(args []string) (deadLetterOptions, error) {
	fs := flag.NewFlagSet("dead-letters", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts deadLetterOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of tasks to list")

	if err := fs.Parse(args); err != nil {
		return deadLetterOptions{}, err
	}
	if opts.Limit <= 0 {
		return deadLetterOptions{}, errors.New("--limit must be greater than zero")
	}
	return opts, nil
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func derefStep(s *model.JobStep) string {
	if s == nil {
		return "-"
	}
	return string(*s)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
