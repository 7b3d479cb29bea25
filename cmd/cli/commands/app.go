package commands

import (
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsynth/cmd/cli/config"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/pipeline"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/internal/storage/implementations/redis"
	"github.com/inferloop/tabsynth/internal/synth"
)

// App holds the global flags and builds the runtime of one invocation
type App struct {
	ConfigFile string
	viper      *viper.Viper
}

// NewApp creates an App reading settings through v
func NewApp(v *viper.Viper) *App {
	if v == nil {
		v = viper.New()
	}
	return &App{viper: v}
}

// session is a ready runtime plus the hook that must run when the command ends
type session struct {
	rt    *pipeline.Runtime
	close func()
}

// open loads the configuration and wires logger, stores, cache and metrics
func (a *App) open() (*session, error) {
	cfg, err := config.LoadConfig(a.viper, a.ConfigFile)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if used := a.viper.ConfigFileUsed(); used != "" {
		logger.WithField("config", used).Debug("Using config file")
	}

	m, err := metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
	if err != nil {
		return nil, err
	}

	rt := pipeline.Runtime{
		Logger:   logger,
		Metrics:  m,
		Storage:  storage.NewFactory(cfg.Storage, logger),
		Synth:    synth.NewFactory(cfg.Synth, logger),
		CacheTTL: cfg.Cache.TTL,
		Query:    cfg.Source.Query,
		Seed:     cfg.Generate.Seed,
	}

	var cache *redis.RedisCache
	if cfg.Cache.Enabled {
		cache, err = redis.NewRedisCache(&cfg.Cache.Redis, logger)
		if err != nil {
			logger.WithError(err).Warn("Statistics cache disabled")
		} else {
			rt.Cache = cache
		}
	}

	runtime, err := pipeline.NewRuntime(rt)
	if err != nil {
		return nil, err
	}

	return &session{
		rt: runtime,
		close: func() {
			if cache != nil {
				if err := cache.Close(); err != nil {
					logger.WithError(err).Debug("Failed to close cache")
				}
			}
			if err := m.Flush(); err != nil {
				logger.WithFields(logrus.Fields{
					"textfile": cfg.Metrics.Textfile,
					"error":    err.Error(),
				}).Warn("Failed to write metrics")
			}
		},
	}, nil
}

// printJSON writes v as one compact JSON line
func printJSON(out io.Writer, v interface{}) error {
	return json.NewEncoder(out).Encode(v)
}

// AddCommands registers every subcommand on root
func AddCommands(root *cobra.Command, app *App) {
	root.AddCommand(NewTrainCmd(app))
	root.AddCommand(NewGenerateCmd(app))
	root.AddCommand(NewStatsCmd(app))
	root.AddCommand(NewEvaluateCmd(app))
	root.AddCommand(NewScanCmd(app))
	root.AddCommand(NewAuditCmd(app))
}
