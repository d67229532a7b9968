package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bscott/askmail/internal/completion"
	"github.com/bscott/askmail/internal/config"
	"github.com/bscott/askmail/internal/ledger"
	"github.com/bscott/askmail/internal/logging"
	"github.com/bscott/askmail/internal/responder"
	"github.com/bscott/askmail/internal/smtp"
	"github.com/gologme/log"
)

type RunCmd struct{}

type ServeCmd struct {
	Interval time.Duration `help:"Time between runs (default from config, 5m)" short:"i"`
}

func (c *Context) newLogger(runID string) *log.Logger {
	return logging.New(c.Formatter.ErrWriter, c.logLevel(), runID)
}

func newResponder(cfg *config.Config, runID string, logger logging.Logger, completer responder.Completer, led ledger.Ledger) *responder.Responder {
	return &responder.Responder{
		Open:            responder.IMAPOpener(cfg.IMAP, logger),
		Completer:       completer,
		Sender:          smtp.NewClient(cfg.SMTP, logger),
		Ledger:          led,
		Logger:          logger,
		From:            cfg.IMAP.Username,
		Fallback:        cfg.Fallback,
		RunID:           runID,
		MaxSendAttempts: cfg.MaxSendAttempts,
	}
}

func openLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	led, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open send-failure ledger: %w", err)
	}
	return led, nil
}

func (r *RunCmd) Run(ctx *Context) error {
	cfg, err := ctx.validConfig()
	if err != nil {
		return err
	}
	base := ctx.context()

	runID := logging.NewRunID()
	logger := ctx.newLogger(runID)

	led, err := openLedger(base, cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	if _, ok := led.(ledger.Nop); ok && cfg.MaxSendAttempts > 0 {
		logger.Warnf("max_send_attempts is %d but no ledger is configured; failed sends are not counted across runs", cfg.MaxSendAttempts)
	}

	resp := newResponder(cfg, runID, logger, completion.New(cfg.Completion, logger), led)
	report, err := resp.Run(base)
	if err != nil {
		return err
	}
	return ctx.printReport(report)
}

func (s *ServeCmd) Run(ctx *Context) error {
	cfg, err := ctx.validConfig()
	if err != nil {
		return err
	}

	interval := s.Interval
	if interval == 0 {
		interval = cfg.Interval
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	base := ctx.context()

	logger := ctx.newLogger("")

	led, err := openLedger(base, cfg)
	if err != nil {
		return err
	}
	if _, ok := led.(ledger.Nop); ok && cfg.MaxSendAttempts > 0 {
		logger.Infof("no ledger configured; counting failed sends in memory")
		led = ledger.NewMemory()
	}
	defer led.Close()

	// One client for the process so the breaker sees every run.
	completer := completion.New(cfg.Completion, logger)

	logger.Infof("watching %s on %s every %s", cfg.IMAP.Mailbox, cfg.IMAP.Addr(), interval)
	responder.Schedule(base, interval, func(runCtx context.Context) {
		runID := logging.NewRunID()
		runLogger := ctx.newLogger(runID)

		resp := newResponder(cfg, runID, runLogger, completer.WithLogger(runLogger), led)
		report, err := resp.Run(runCtx)
		if err != nil {
			// The responder already logged connect and list failures.
			return
		}
		if err := ctx.printReport(report); err != nil {
			runLogger.Warnf("failed to print report: %v", err)
		}
	})
	logger.Infof("shutting down")
	return nil
}

func (c *Context) printReport(r *responder.Report) error {
	f := c.Formatter
	if f.JSON {
		return f.PrintJSON(r)
	}
	if f.Quiet {
		return nil
	}

	fmt.Fprintf(f.Writer, "%s %s (%s)\n", f.Bold("Run"), r.RunID, r.Duration.Round(time.Millisecond))

	table := f.NewTable("FOUND", "REPLIED", "FALLBACK", "SKIPPED", "FAILED", "DEAD-LETTERED")
	failed := fmt.Sprint(r.Failed)
	if r.Failed > 0 {
		failed = f.ErrorText(failed)
	}
	table.AddRow(
		fmt.Sprint(r.Found),
		f.SuccessText(fmt.Sprint(r.Replied)),
		fmt.Sprint(r.Fallback),
		f.MutedText(fmt.Sprint(r.Skipped)),
		failed,
		fmt.Sprint(r.DeadLettered),
	)
	table.Flush()
	return nil
}
