// Package main implements the CloudWatch standard deviation alarm reconciler.
//
// For every metric matching a namespace, metric name and optional dimension filter, the
// reconciler samples the configured statistic over a lookback window, computes the mean and
// population standard deviation, and keeps a pair of threshold alarms at mean ± k·σ in sync.
//
// The binary runs in one of three modes:
//   - Lambda: when AWS_LAMBDA_RUNTIME_API is set, each invocation runs one reconciliation
//   - Scheduled: when SCHEDULE holds a cron expression, runs repeat until SIGINT/SIGTERM
//   - One-shot: otherwise a single reconciliation runs and the process exits
//
// Required configuration is provided through environment variables:
//   - METRIC_NAMESPACE, METRIC_NAME, METRIC_STAT: the metric to watch
//   - ALARM_EVALUATION_PERIODS, ALARM_DATAPOINTS_TO_ALARM, ALARM_PERIOD
//
// In scheduled mode METRICS_ADDR serves /health, /ready, /live and /metrics.
//
// Example usage:
//
//	export METRIC_NAMESPACE="AWS/SQS"
//	export METRIC_NAME="NumberOfMessagesSent"
//	export METRIC_STAT="Sum"
//	export METRIC_DIMENSIONS="QueueName,^orders-"
//	export ALARM_EVALUATION_PERIODS=3 ALARM_DATAPOINTS_TO_ALARM=2 ALARM_PERIOD=300
//	./cloudwatch-stddev-alarms
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/audit"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/catalog"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/cloudwatch"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/config"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/engine"
	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/health"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/metrics"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/reconciler"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/scheduler"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/tracing"
)

// Build information - set at build time via ldflags
var (
	version = "dev"     // e.g., "v0.4.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

const (
	exitBackendError = 1
	exitConfigError  = 2
)

// app holds the wired components shared by every run.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	metrics *metrics.Metrics
	audit   *audit.Logger
	health  *health.Checker
	logger  *zap.Logger
}

func main() {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitConfigError)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(exitConfigError)
	}

	code := run(cfg, logger)
	_ = logger.Sync() // Ignore error on cleanup
	os.Exit(code)
}

func run(cfg *config.Config, logger *zap.Logger) int {
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return exitConfigError
	}

	logger.Info("Starting CloudWatch stddev alarm reconciler",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.Any("config", cfg.Redact()),
	)

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "cloudwatch-stddev-alarms",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return exitCode(err)
	}

	switch {
	case os.Getenv("AWS_LAMBDA_RUNTIME_API") != "":
		logger.Info("Running as Lambda handler")
		lambda.StartWithOptions(a.handleEvent, lambda.WithContext(ctx))
		return 0
	case cfg.Schedule != "":
		return a.runScheduled(ctx)
	default:
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
		if err := a.runOnce(runCtx); err != nil {
			return exitCode(err)
		}
		return 0
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	m := metrics.New(logger)
	client, err := cloudwatch.New(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, client, m, logger)
}

// buildApp wires every component on top of backend.
func buildApp(cfg *config.Config, backend monitoring.Backend, m *metrics.Metrics, logger *zap.Logger) (*app, error) {
	filter, err := cfg.DimensionFilter()
	if err != nil {
		return nil, err
	}
	mode, err := cfg.BoundsMode()
	if err != nil {
		return nil, err
	}
	treatMissing, err := cfg.TreatMissing()
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(logger, cfg.EnableAuditLog).WithDryRun(cfg.DryRun)
	checker := health.New(backend, cfg.Namespace, cfg.MetricName, logger).WithAudit(auditLogger)

	if cfg.DryRun {
		logger.Info("Dry run enabled, alarms will not be modified")
		backend = monitoring.NewDryRun(backend, logger)
	}

	cat := catalog.New(backend, cfg.Namespace, cfg.MetricName, filter, cfg.Statistic, cfg.Unit, logger)
	rec := reconciler.New(backend, reconciler.Options{
		BaseName:                cfg.AlarmName,
		Multiplier:              cfg.StdDevMultiplier,
		Mode:                    mode,
		Statistic:               cfg.Statistic,
		Unit:                    cfg.Unit,
		EvaluationPeriods:       cfg.EvaluationPeriods,
		DatapointsToAlarm:       cfg.DatapointsToAlarm,
		TreatMissingData:        treatMissing,
		OKActions:               cfg.OKActions,
		AlarmActions:            cfg.AlarmActions,
		InsufficientDataActions: cfg.InsufficientDataActions,
	}, auditLogger, m, logger)

	eng := engine.New(engine.Options{
		Namespace:  cfg.Namespace,
		MetricName: cfg.MetricName,
		SampleDays: cfg.SampleDays,
		Period:     cfg.AlarmPeriod,
		Multiplier: cfg.StdDevMultiplier,
	}, cat, rec, m, logger)

	return &app{
		cfg:     cfg,
		engine:  eng,
		metrics: m,
		audit:   auditLogger,
		health:  checker,
		logger:  logger,
	}, nil
}

// runOnce performs one reconciliation and publishes run metrics.
func (a *app) runOnce(ctx context.Context) error {
	summary, err := a.engine.Run(ctx)
	a.health.RecordRun(time.Now(), err)
	if summary != nil {
		a.logRunWrites(summary.TraceID)
	}

	if a.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if pushErr := a.metrics.Push(pushCtx, a.cfg.PushgatewayURL, a.cfg.PushJobName); pushErr != nil {
			a.logger.Warn("Failed to push metrics", zap.Error(pushErr))
		}
	}
	a.metrics.LogStats()
	a.audit.LogStats()
	return err
}

// logRunWrites reports how many audited alarm writes the run with traceID issued and how many failed.
func (a *app) logRunWrites(traceID string) {
	if !a.audit.IsEnabled() {
		return
	}
	writes := a.audit.GetEntriesByTraceID(traceID)
	failed := 0
	for _, w := range writes {
		if !w.Success {
			failed++
		}
	}
	a.logger.Info("Run writes audited",
		zap.String("trace_id", traceID),
		zap.Int("writes", len(writes)),
		zap.Int("failed", failed),
	)
}

// handleEvent runs one reconciliation per invocation and hands the event back unchanged.
func (a *app) handleEvent(ctx context.Context, event json.RawMessage) (json.RawMessage, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	defer cancel()
	if err := a.runOnce(runCtx); err != nil {
		return nil, invokeError(err)
	}
	return event, nil
}

// invokeError reports structured errors to the Lambda runtime with their code as the error
// type and the full JSON form, including details and suggestion, as the message.
func invokeError(err error) error {
	var se *apperrors.StructuredError
	if !errors.As(err, &se) {
		return err
	}
	return messages.InvokeResponse_Error{
		Type:    string(se.Code),
		Message: se.ToJSON(),
	}
}

func (a *app) runScheduled(ctx context.Context) int {
	var srv *health.Server
	run := a.runOnce
	if a.cfg.MetricsAddr != "" {
		srv = health.NewServer(a.health, a.metrics.Handler(), a.cfg.MetricsAddr, a.logger)
		run = func(ctx context.Context) error {
			err := a.runOnce(ctx)
			srv.SetReady(true)
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				a.logger.Error("Health server error", zap.Error(err))
			}
		}()
	}

	sched, err := scheduler.New(a.cfg.Schedule, a.cfg.RunTimeout, run, a.logger)
	if err != nil {
		a.logger.Error("Invalid schedule", zap.Error(err))
		return exitConfigError
	}

	sched.Run(ctx)
	a.logger.Info("Received shutdown signal, scheduler stopped")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return 0
}

func exitCode(err error) int {
	if apperrors.IsConfigurationError(err) {
		return exitConfigError
	}
	return exitBackendError
}

// initLogger builds a production logger if ENVIRONMENT=production, otherwise a development
// logger. LOG_FORMAT selects the encoding and LOG_LEVEL the minimum level. When LOG_FILE is
// set every entry is also written, as JSON, to a size-rotated file.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	switch cfg.LogFormat {
	case "json", "console":
		zapCfg.Encoding = cfg.LogFormat
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil || cfg.LogFile == "" {
		return logger, err
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapCfg.EncoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}),
		level,
	)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
