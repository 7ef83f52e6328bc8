package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/payconfirm/internal/alert"
	"github.com/roach88/payconfirm/internal/config"
	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/poll"
	"github.com/roach88/payconfirm/internal/probe"
	"github.com/roach88/payconfirm/internal/push"
	"github.com/roach88/payconfirm/internal/reconcile"
	"github.com/roach88/payconfirm/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string
	ProbeURL    string
	RedisAddr   string
	Target      string
	Interval    time.Duration
	MaxAttempts int
	Retries     int

	// Overrides for tests. Nil fields are built from the configuration.
	Prober        probe.Prober
	Transport     push.Transport
	AlertSink     alert.Sink
	TickerFactory poll.TickerFactory
}

// WatchResult is the outcome printed by watch.
type WatchResult struct {
	Identifier   string          `json:"identifier"`
	Status       string          `json:"status"`
	Target       string          `json:"target,omitempty"`
	ForObjectRef json.RawMessage `json:"for_object_ref,omitempty"`
	Attempt      int             `json:"attempt"`
	Retries      int             `json:"retries"`
	AlertSent    bool            `json:"alert_sent"`
	ElapsedMs    int64           `json:"elapsed_ms"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return newWatchCommand(&WatchOptions{RootOptions: rootOpts})
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <identifier>",
		Short: "Wait for a payment confirmation",
		Long: `Reconcile one payment: probe immediately, then poll at a fixed interval
while listening for a push confirmation, whichever comes first.

If polling is exhausted a PAYMENT_TIMEOUT alert is raised (once per
identifier) and up to --retries manual retries are made, one interval apart.

Exit codes: 0 confirmed, 1 timed out or interrupted, 2 command error.

Examples:
  payconfirm watch si_123 --probe-url http://payments.internal/api
  payconfirm watch si_123 --config payconfirm.yaml --db ./payconfirm.db --retries 2
  payconfirm watch si_123 --redis-addr localhost:6379 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for the alert ledger and history")
	cmd.Flags().StringVar(&opts.ProbeURL, "probe-url", "", "base URL of the confirmation service")
	cmd.Flags().StringVar(&opts.RedisAddr, "redis-addr", "", "Redis address for push confirmations")
	cmd.Flags().StringVar(&opts.Target, "target", "", "expected target kind, if known")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (overrides config)")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "poll attempts before timing out (overrides config)")
	cmd.Flags().IntVar(&opts.Retries, "retries", 0, "manual retries after a timeout")

	return cmd
}

// watchOutcome is what the observer hands back to the command goroutine.
type watchOutcome struct {
	kind confirm.OutcomeKind
	res  confirm.Result
}

// watchRuntime holds everything watch wires together.
type watchRuntime struct {
	prober    probe.Prober
	transport push.Transport
	emitter   *alert.Emitter
	ledger    reconcile.Ledger
	outcomes  reconcile.OutcomeLog
	clock     *reconcile.Clock
	closers   []func() error
}

func (rt *watchRuntime) close(logger *slog.Logger) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.Error("error closing resource", "error", err)
		}
	}
}

func runWatch(opts *WatchOptions, identifier string, cmd *cobra.Command) error {
	logger := opts.logger()
	out := opts.formatter(cmd)

	if opts.Retries < 0 {
		return NewExitError(ExitCommandError, "--retries must not be negative")
	}

	cfg, err := resolveWatchConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	rt, err := buildWatchRuntime(cmd.Context(), opts, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up", err)
	}
	defer rt.close(logger)
	defer rt.emitter.Wait()

	outcomes := make(chan watchOutcome, 4)
	coordOpts := []reconcile.Option{
		reconcile.WithPolicy(reconcile.Policy{
			Interval:     cfg.Poll.Interval.Std(),
			MaxAttempts:  cfg.Poll.MaxAttempts,
			ProbeTimeout: cfg.ProbeTimeout(),
		}),
		reconcile.WithLedger(rt.ledger),
		reconcile.WithOutcomeLog(rt.outcomes),
		reconcile.WithEnvironment(cfg.Alert.Environment),
		reconcile.WithSeverity(cfg.Alert.Severity),
		reconcile.WithChannel(cfg.Push.Channel),
		reconcile.WithLogger(logger),
		reconcile.WithObserver(reconcile.ObserverFuncs{
			Success: func(_ string, res confirm.Result) {
				outcomes <- watchOutcome{kind: confirm.OutcomeSuccess, res: res}
			},
			Timeout: func(string) {
				outcomes <- watchOutcome{kind: confirm.OutcomeTimeout}
			},
		}),
	}
	if rt.clock != nil {
		coordOpts = append(coordOpts, reconcile.WithClock(rt.clock))
	}
	if opts.TickerFactory != nil {
		coordOpts = append(coordOpts, reconcile.WithTickerFactory(opts.TickerFactory))
	}

	coord, err := reconcile.New(rt.prober, rt.transport, rt.emitter, coordOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create coordinator", err)
	}

	// The loop runs on its own context so Close still works after a signal.
	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- coord.Run(runCtx) }()
	defer func() {
		coord.Stop()
		stopRun()
		if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("coordinator stopped with error", "error", err)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	started := time.Now()
	if err := coord.Start(runCtx, identifier, opts.Target); err != nil {
		return WrapExitError(ExitCommandError, "failed to start reconciliation", err)
	}
	out.VerboseLog("watching %s (interval=%s max_attempts=%d)", identifier, cfg.Poll.Interval, cfg.Poll.MaxAttempts)

	retries := 0
	for {
		select {
		case <-ctx.Done():
			if err := coord.Close(runCtx); err != nil {
				logger.Warn("close after interrupt failed", "error", err)
			}
			return NewExitError(ExitFailure, fmt.Sprintf("interrupted while watching %s", identifier))

		case o := <-outcomes:
			result := WatchResult{
				Identifier: confirm.NormalizeIdentifier(identifier),
				Retries:    retries,
				ElapsedMs:  time.Since(started).Milliseconds(),
			}
			if snap, err := coord.Snapshot(runCtx); err == nil && snap != nil {
				result.Attempt = snap.Attempt
				result.AlertSent = snap.AlertSent
				result.Target = snap.Target
			}

			if o.kind == confirm.OutcomeSuccess {
				result.Status = confirm.StatusSuccess.String()
				result.Target = o.res.Target
				result.ForObjectRef = o.res.ForObjectRef
				return out.Success(result, func(w io.Writer) { printWatchResult(w, result) })
			}

			if retries < opts.Retries {
				retries++
				logger.Info("retrying after timeout", "identifier", identifier, "retry", retries, "of", opts.Retries)
				select {
				case <-ctx.Done():
					continue
				case <-time.After(cfg.Poll.Interval.Std()):
				}
				if err := coord.Retry(runCtx); err != nil {
					return WrapExitError(ExitFailure, "retry failed", err)
				}
				continue
			}

			result.Status = confirm.StatusTimeout.String()
			if err := out.Emit("timeout", result, func(w io.Writer) { printWatchResult(w, result) }); err != nil {
				return WrapExitError(ExitCommandError, "failed to write output", err)
			}
			return NewExitError(ExitFailure, fmt.Sprintf("payment %s not confirmed", result.Identifier))
		}
	}
}

func printWatchResult(w io.Writer, r WatchResult) {
	if r.Status == confirm.StatusSuccess.String() {
		fmt.Fprintf(w, "%s confirmed", r.Identifier)
		if r.Target != "" {
			fmt.Fprintf(w, " target=%s", r.Target)
		}
		if len(r.ForObjectRef) > 0 {
			fmt.Fprintf(w, " ref=%s", r.ForObjectRef)
		}
		fmt.Fprintf(w, " attempts=%d elapsed=%s\n", r.Attempt, time.Duration(r.ElapsedMs)*time.Millisecond)
		return
	}

	fmt.Fprintf(w, "%s not confirmed after %d attempts and %d retries", r.Identifier, r.Attempt, r.Retries)
	if r.AlertSent {
		fmt.Fprint(w, " (alert raised)")
	}
	fmt.Fprintln(w)
}

// resolveWatchConfig loads the config file, if any, and applies flags the
// user actually set on top of it.
func resolveWatchConfig(opts *WatchOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Poll.Interval = config.Duration(opts.Interval)
	}
	if flags.Changed("max-attempts") {
		cfg.Poll.MaxAttempts = opts.MaxAttempts
	}
	if flags.Changed("probe-url") {
		cfg.Probe.BaseURL = opts.ProbeURL
	}
	if flags.Changed("redis-addr") {
		cfg.Push.RedisAddr = opts.RedisAddr
	}
	if flags.Changed("db") {
		cfg.Store.Path = opts.Database
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func buildWatchRuntime(ctx context.Context, opts *WatchOptions, cfg *config.Config, logger *slog.Logger) (*watchRuntime, error) {
	rt := &watchRuntime{}
	ok := false
	defer func() {
		if !ok {
			rt.close(logger)
		}
	}()

	httpClient := resty.New().SetHeader("User-Agent", "payconfirm/"+Version)

	p := opts.Prober
	if p == nil {
		if cfg.Probe.BaseURL == "" {
			return nil, fmt.Errorf("probe.base_url (or --probe-url) is required")
		}
		hp, err := probe.NewHTTPProber(cfg.Probe.BaseURL,
			probe.WithClient(httpClient),
			probe.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		p = hp
	}
	rt.prober = probe.Bounded(p, cfg.ProbeTimeout())

	var client *redis.Client
	if cfg.Push.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.Push.RedisAddr})
		rt.closers = append(rt.closers, client.Close)
	}

	rt.transport = opts.Transport
	if rt.transport == nil && client != nil {
		rt.transport = push.NewRedisTransport(client, logger)
	}

	sink := opts.AlertSink
	if sink == nil {
		switch {
		case cfg.Alert.WebhookURL != "":
			sink = alert.NewWebhookSink(cfg.Alert.WebhookURL, httpClient)
		case cfg.Alert.RedisChannel != "" && client != nil:
			sink = alert.NewRedisSink(client, cfg.Alert.RedisChannel)
		default:
			sink = alert.NewLogSink(logger)
		}
	}
	rt.emitter = alert.NewEmitter(sink,
		alert.WithRatePerMinute(cfg.Alert.RatePerMinute),
		alert.WithSendTimeout(cfg.Alert.SendTimeout.Std()),
		alert.WithEnvironment(cfg.Alert.Environment),
		alert.WithLogger(logger),
	)

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, st.Close)
		rt.ledger = st
		rt.outcomes = st

		// keep trace and outcome seq increasing across runs sharing a store
		last, err := st.LastOutcomeSeq(ctx)
		if err != nil {
			return nil, err
		}
		rt.clock = reconcile.NewClockAt(last)
	} else {
		rt.ledger = reconcile.NewMemoryLedger(cfg.Ledger.Recent)
	}

	ok = true
	return rt, nil
}
