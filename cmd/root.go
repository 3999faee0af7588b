// Package cmd wires the SCM's CLI surface: flag parsing, logger setup,
// UPSF Gateway selection and the Supervisor's lifecycle.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/hsnlab/upsf-scm/internal/buildinfo"
	"github.com/hsnlab/upsf-scm/internal/config"
	"github.com/hsnlab/upsf-scm/internal/metrics"
	"github.com/hsnlab/upsf-scm/internal/supervisor"
	"github.com/hsnlab/upsf-scm/internal/upsf"
	"github.com/hsnlab/upsf-scm/internal/upsf/grpcgateway"
	"github.com/hsnlab/upsf-scm/internal/upsf/memgateway"
)

// Info is the version metadata logged at startup; main sets it from
// linker-injected globals before calling Execute.
var Info buildinfo.BuildInfo

// zapLevelFor maps the SCM's five log levels onto a zap threshold. zap
// has no distinct CRITICAL level; DPanicLevel is used as the closest
// stand-in purely for filtering purposes; it is never triggered as a
// panic here, since this only ever configures the enabled level.
func zapLevelFor(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "critical":
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewRootCmd builds the upsf-scm root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsf-scm",
		Short: "Session Context Manager: UPSF placement agent",
		Long: `upsf-scm watches a UPSF (User-Plane Selection Function) and assigns each
Session Context that lacks a desired shard to an SGUP/Shard pair chosen
by a load-balancing policy, while materializing a declarative set of
default Session Contexts from a configuration file.`,
	}

	flags := config.BindFlags(cmd.Flags())

	cmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := flags.Resolve()
		if err != nil {
			return err
		}
		return run(context.Background(), cfg)
	}

	return cmd
}

func run(parentCtx context.Context, cfg config.Config) error {
	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.DPanicLevel,
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapLevelFor(cfg.LogLevel),
	}
	logger := zap.New(zap.UseFlagOptions(&opts))
	ctrl.SetLogger(logger.WithName("upsf-scm"))
	setupLog := logger.WithName("setup")

	setupLog.Info(fmt.Sprintf("starting upsf-scm %s", Info.String()))

	m := metrics.New()

	var gw upsf.Gateway
	if cfg.UPSFDev {
		setupLog.Info("using in-memory UPSF gateway", "reason", "--upsf-dev")
		gw = memgateway.New()
	} else {
		target := fmt.Sprintf("%s:%d", cfg.UPSFHost, cfg.UPSFPort)
		g, err := grpcgateway.Dial(parentCtx, target, m.Registerer())
		if err != nil {
			setupLog.Error(err, "failed to dial upsf", "target", target)
			return err
		}
		defer g.Close() //nolint:errcheck
		gw = g
	}

	sv := supervisor.New(gw, cfg, m, logger)

	ctx := ctrl.SetupSignalHandler()
	return sv.Run(ctx)
}
