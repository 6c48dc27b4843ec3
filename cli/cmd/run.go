package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/adapter"
	"github.com/MateoLopez004/Gobackup/adapter/redis"
	"github.com/MateoLopez004/Gobackup/adapter/webhook"
	"github.com/MateoLopez004/Gobackup/artifact"
	"github.com/MateoLopez004/Gobackup/cli/config"
	"github.com/MateoLopez004/Gobackup/cli/tui"
	"github.com/MateoLopez004/Gobackup/lode"
	"github.com/MateoLopez004/Gobackup/log"
	"github.com/MateoLopez004/Gobackup/metrics"
	"github.com/MateoLopez004/Gobackup/poller"
	"github.com/MateoLopez004/Gobackup/remote"
	"github.com/MateoLopez004/Gobackup/runtime"
	"github.com/MateoLopez004/Gobackup/trace"
	"github.com/MateoLopez004/Gobackup/types"
)

// closeTimeout bounds the wait for deliveries and adapter shutdown.
const closeTimeout = 30 * time.Second

// RunCommand returns the run command: upload, trigger, poll, retrieve.
// This is the only command that changes state on the service.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Upload files, run a backup job and retrieve the archive",
		ArgsUsage: "<file> [file...]",
		Flags: append(ServerFlags(),
			// Polling flags
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between status polls",
				Value: poller.DefaultInterval,
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Status polls before the job is declared timed out",
				Value: poller.DefaultMaxAttempts,
			},
			&cli.DurationFlag{
				Name:  "settle-delay",
				Usage: "Wait between completion and the archive metadata fetch",
				Value: artifact.DefaultSettleDelay,
			},
			// Output flags
			&cli.StringFlag{
				Name:  "output-backend",
				Usage: "Archive delivery: link (print URL), fs or s3",
				Value: artifact.BackendLink,
			},
			&cli.StringFlag{
				Name:  "output-path",
				Usage: "Delivery target (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for the s3 backend (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible providers",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint (webhook URL or redis://host:port/db)",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-publish timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Publish retries",
				Value: webhook.DefaultRetries,
			},
			&cli.BoolFlag{
				Name:  "adapter-require-subscriber",
				Usage: "Redis: retry when no subscriber received the event",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value (repeatable)",
			},
			// Output control
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to this path (- for stderr)",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write run counters in Prometheus text format (node_exporter textfile collector)",
			},
			&cli.StringFlag{
				Name:  "trace",
				Usage: "Record every poll tick to this file (see gobackup replay)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show live progress",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			&cli.BoolFlag{
				Name:  "cleanup",
				Usage: "Delete the session on the service after a successful fs/s3 delivery",
			},
		),
		Action: runAction,
	}
}

// runChoice holds the resolved run configuration.
type runChoice struct {
	server      string
	timeout     time.Duration
	headers     map[string]string
	interval    time.Duration
	maxAttempts int
	settleDelay time.Duration
	output      outputChoice
	adapter     *adapterChoice
	logLevel    string
	cleanup     bool
	report      string
	metricsFile string
	trace       string
	tui         bool
	quiet       bool
}

// outputChoice holds the archive delivery configuration.
type outputChoice struct {
	backend   string // link, fs or s3
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// adapterChoice holds parsed adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
	// requireSubscriber applies to redis only.
	requireSubscriber bool
}

func runAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("run requires at least one file", runtime.ExitCodeFailed)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailed)
	}
	choice, err := resolveRunChoice(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailed)
	}
	blobs, err := collectBlobs(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailed)
	}

	level, err := log.ParseLevel(choice.logLevel)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeFailed)
	}
	logger := log.NewLogger(level)
	if choice.tui {
		logger = logger.WithOutput(io.Discard)
	}
	defer func() { _ = logger.Sync() }()

	client, err := remote.New(remote.Config{
		BaseURL: choice.server,
		Timeout: choice.timeout,
		Headers: choice.headers,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --server: %v", err), runtime.ExitCodeFailed)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	deliverer, err := buildDeliverer(ctx, client, choice.output)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid output: %v", err), runtime.ExitCodeFailed)
	}
	ad, err := buildAdapter(choice.adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter: %v", err), runtime.ExitCodeFailed)
	}
	var recorder *trace.Recorder
	if choice.trace != "" {
		if recorder, err = trace.Create(choice.trace); err != nil {
			if ad != nil {
				_ = ad.Close()
			}
			return cli.Exit(fmt.Sprintf("cannot create trace: %v", err), runtime.ExitCodeFailed)
		}
	}

	collector := metrics.NewCollector(choice.server, deliverer.Backend())

	// The progress view can request an interrupt before the orchestrator
	// exists.
	var current atomic.Pointer[runtime.Orchestrator]
	var interruptOnce sync.Once
	interrupt := func() {
		interruptOnce.Do(func() {
			logger.Warn("interrupted, resetting session", nil)
			cancel()
			if o := current.Load(); o != nil {
				o.Reset()
			}
		})
	}

	var progress *tui.RunProgress
	var observer runtime.Observer
	if choice.tui {
		progress = tui.StartRunProgress(c.App.Writer, interrupt)
		observer = progress.Observe
	}

	orch, err := runtime.New(client, runtime.Config{
		Poller: poller.Config{
			Interval:    choice.interval,
			MaxAttempts: choice.maxAttempts,
		},
		SettleDelay: choice.settleDelay,
		Deliverer:   deliverer,
		Adapter:     ad,
		Recorder:    recorder,
		Cleanup:     choice.cleanup,
		Server:      choice.server,
		Logger:      logger,
		Collector:   collector,
		Observer:    observer,
	})
	if err != nil {
		if progress != nil {
			_ = progress.Stop()
		}
		return cli.Exit(err.Error(), runtime.ExitCodeFailed)
	}
	current.Store(orch)
	if ctx.Err() != nil {
		orch.Reset()
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			interrupt()
		case <-ctx.Done():
		}
	}()

	startTime := time.Now()
	res, runErr := execute(ctx, orch, blobs)
	duration := time.Since(startTime)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	if err := orch.Close(closeCtx); err != nil {
		logger.Warn("shutdown incomplete", map[string]any{"error": err.Error()})
	}
	closeCancel()
	if progress != nil {
		_ = progress.Stop()
	}

	outcome := runtime.DetermineOutcome(res, runErr)

	if choice.report != "" {
		report := runtime.BuildBackupReport(orch.View(), res, collector.Snapshot(), outcome)
		report.DurationMs = duration.Milliseconds()
		if err := runtime.WriteBackupReport(report, choice.report); err != nil {
			logger.Error("failed to write report", map[string]any{"error": err.Error()})
		}
	}

	if choice.metricsFile != "" {
		if err := metrics.WriteTextfile(choice.metricsFile, collector.Snapshot()); err != nil {
			logger.Error("failed to write metrics", map[string]any{"error": err.Error()})
		}
	}

	if !choice.quiet {
		printRunResult(c.App.Writer, orch.View(), res, outcome, duration)
	}

	if outcome.ExitCode == runtime.ExitCodeDone {
		return cli.Exit("", runtime.ExitCodeDone)
	}
	return cli.Exit(outcome.Message, outcome.ExitCode)
}

// execute runs one session: uploads, a trigger cycle and the wait for its
// result. A nil result means no cycle finished.
func execute(ctx context.Context, orch *runtime.Orchestrator, blobs []types.Blob) (*runtime.CycleResult, error) {
	// Failures caused by an interrupt report the interrupt.
	fail := func(err error) (*runtime.CycleResult, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if _, err := orch.Upload(ctx, blobs); err != nil {
		return fail(err)
	}
	if err := orch.Trigger(ctx); err != nil {
		return fail(err)
	}
	res, err := orch.Wait(ctx)
	if err != nil {
		return fail(err)
	}
	if res.Abandoned && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &res, nil
}

// resolveRunChoice applies flag > config > default precedence and
// validates the result.
func resolveRunChoice(c *cli.Context, cfg *config.Config) (runChoice, error) {
	choice := runChoice{
		server:      resolveString(c, "server", configVal(cfg, func(c *config.Config) string { return c.Server.URL })),
		timeout:     resolveDuration(c, "timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Server.Timeout.Duration })),
		headers:     configVal(cfg, func(c *config.Config) map[string]string { return c.Server.Headers }),
		interval:    resolveDuration(c, "interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Polling.Interval.Duration })),
		maxAttempts: resolveInt(c, "max-attempts", configVal(cfg, func(c *config.Config) int { return c.Polling.MaxAttempts })),
		settleDelay: c.Duration("settle-delay"),
		logLevel:    resolveString(c, "log-level", configVal(cfg, func(c *config.Config) string { return c.Log.Level })),
		cleanup:     resolveBool(c, "cleanup", configVal(cfg, func(c *config.Config) bool { return c.Cleanup })),
		report:      c.String("report"),
		metricsFile: c.String("metrics-file"),
		trace:       c.String("trace"),
		tui:         c.Bool("tui"),
		quiet:       c.Bool("quiet"),
	}
	// An explicit settle_delay: 0s in the config disables the wait.
	if !c.IsSet("settle-delay") && cfg != nil && cfg.Polling.SettleDelay != nil {
		choice.settleDelay = cfg.Polling.SettleDelay.Duration
	}

	if choice.interval <= 0 {
		return runChoice{}, fmt.Errorf("--interval must be positive, got %s", choice.interval)
	}
	if choice.maxAttempts <= 0 {
		return runChoice{}, fmt.Errorf("--max-attempts must be positive, got %d", choice.maxAttempts)
	}
	if choice.settleDelay < 0 {
		return runChoice{}, fmt.Errorf("--settle-delay must not be negative, got %s", choice.settleDelay)
	}

	out, err := resolveOutput(c, cfg)
	if err != nil {
		return runChoice{}, err
	}
	choice.output = out

	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type }))
	if adapterType != "" {
		ac, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return runChoice{}, err
		}
		choice.adapter = ac
	}

	return choice, nil
}

func resolveOutput(c *cli.Context, cfg *config.Config) (outputChoice, error) {
	out := outputChoice{
		backend:   resolveString(c, "output-backend", configVal(cfg, func(c *config.Config) string { return c.Output.Backend })),
		path:      resolveString(c, "output-path", configVal(cfg, func(c *config.Config) string { return c.Output.Path })),
		region:    resolveString(c, "s3-region", configVal(cfg, func(c *config.Config) string { return c.Output.Region })),
		endpoint:  resolveString(c, "s3-endpoint", configVal(cfg, func(c *config.Config) string { return c.Output.Endpoint })),
		pathStyle: resolveBool(c, "s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Output.S3PathStyle })),
	}
	switch out.backend {
	case artifact.BackendLink:
	case artifact.BackendFS, artifact.BackendS3:
		if out.path == "" {
			return outputChoice{}, fmt.Errorf("--output-path is required when --output-backend=%s", out.backend)
		}
	default:
		return outputChoice{}, fmt.Errorf("invalid --output-backend %q (must be link, fs or s3)", out.backend)
	}
	return out, nil
}

// parseAdapterConfigWithPrecedence resolves adapter settings for adapterType.
func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (*adapterChoice, error) {
	switch adapterType {
	case "webhook", "redis":
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}

	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL })),
		channel:     resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel })),
		timeout:     resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration })),
		retries:     c.Int("adapter-retries"),
	}
	ac.requireSubscriber = c.Bool("adapter-require-subscriber")
	if !c.IsSet("adapter-require-subscriber") && cfg != nil {
		ac.requireSubscriber = cfg.Adapter.RequireSubscriber
	}
	if ac.url == "" {
		return nil, fmt.Errorf("--adapter-url is required when --adapter=%s", adapterType)
	}
	if !c.IsSet("adapter-retries") && cfg != nil && cfg.Adapter.Retries != nil {
		ac.retries = *cfg.Adapter.Retries
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}

	headers := make(map[string]string)
	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }) {
		headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (want Key=Value)", h)
		}
		headers[k] = v
	}
	if len(headers) > 0 {
		ac.headers = headers
	}
	return ac, nil
}

// buildAdapter constructs the configured adapter; nil config means none.
func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	if ac == nil {
		return nil, nil
	}
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:               ac.url,
			Channel:           ac.channel,
			Timeout:           ac.timeout,
			Retries:           ac.retries,
			RequireSubscriber: ac.requireSubscriber,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.adapterType)
	}
}

// buildDeliverer constructs the archive deliverer for the output backend.
func buildDeliverer(ctx context.Context, client *remote.Client, out outputChoice) (artifact.Deliverer, error) {
	switch out.backend {
	case artifact.BackendLink, "":
		return artifact.NewLinkDeliverer(client), nil
	case artifact.BackendFS:
		return artifact.NewStoreDeliverer(client, lode.NewFSStore(out.path), artifact.BackendFS), nil
	case artifact.BackendS3:
		bucket, prefix := lode.ParseS3Path(out.path)
		store, err := lode.NewS3Store(ctx, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       out.region,
			Endpoint:     out.endpoint,
			UsePathStyle: out.pathStyle,
		})
		if err != nil {
			return nil, err
		}
		return artifact.NewStoreDeliverer(client, store, artifact.BackendS3), nil
	default:
		return nil, fmt.Errorf("unknown output backend %q", out.backend)
	}
}

// collectBlobs turns command arguments into upload blobs.
func collectBlobs(paths []string) ([]types.Blob, error) {
	blobs := make([]types.Blob, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory; pass files", p)
		}
		blob, err := types.FileBlob(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func printRunResult(w io.Writer, view types.SessionView, res *runtime.CycleResult, outcome runtime.Outcome, duration time.Duration) {
	fmt.Fprintf(w, "\nsession_id=%s, status=%s, exit_code=%d, duration=%s\n",
		orNone(view.ID),
		view.Status,
		outcome.ExitCode,
		duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Uploads ===\n")
	for _, fd := range view.Manifest {
		if fd.Succeeded() {
			fmt.Fprintf(w, "  ok      %s (%d bytes)\n", fd.Name, fd.Size)
		} else {
			fmt.Fprintf(w, "  failed  %s: %s\n", fd.Name, fd.Reason)
		}
	}

	fmt.Fprintf(w, "\n=== Result ===\n")
	fmt.Fprintf(w, "Outcome:      %s\n", outcome.Message)
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Attempts:     %d\n", res.Attempts)
	if res.Path != types.PathNone {
		fmt.Fprintf(w, "Completion:   %s (%d%%)\n", res.Path, res.Percent)
	}
	if res.Last != nil {
		fmt.Fprintf(w, "Files copied: %d/%d\n", res.Last.FilesCopied, res.Last.TotalFiles)
	}
	if res.Artifact != nil {
		fmt.Fprintf(w, "Archive:      %s (%s)\n", res.Artifact.Filename, res.Artifact.SizeMB)
	}
	if d := res.Delivery; d != nil {
		fmt.Fprintf(w, "Delivered:    %s via %s\n", d.Location, d.Backend)
		if d.Bytes > 0 {
			fmt.Fprintf(w, "Bytes:        %d\n", d.Bytes)
		}
		if d.Err != nil {
			fmt.Fprintf(w, "Delivery err: %v\n", d.Err)
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "\n=== Warnings ===\n")
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
