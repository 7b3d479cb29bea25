package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/internal/storage/implementations/redis"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

type CLIConfig struct {
	Log      LogConfig                `mapstructure:"log"`
	Storage  storage.Config           `mapstructure:"storage"`
	Cache    CacheConfig              `mapstructure:"cache"`
	Synth    synth.Config             `mapstructure:"synth"`
	Source   SourceConfig             `mapstructure:"source"`
	Metrics  metrics.PrometheusConfig `mapstructure:"metrics"`
	Generate GenerateConfig           `mapstructure:"generate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig enables the Redis cache for stats payloads
type CacheConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Redis   redis.RedisConfig `mapstructure:"redis"`
	TTL     time.Duration     `mapstructure:"ttl"`
}

type SourceConfig struct {
	// Query is run against postgres, mysql and sqlite sources
	Query string `mapstructure:"query"`
}

type GenerateConfig struct {
	Seed int64 `mapstructure:"seed"`
}

// LoadConfig reads the optional YAML file and the TABSYNTH_* environment into
// v. Without cfgFile, $HOME/.tabsynth.yaml is used when present.
func LoadConfig(v *viper.Viper, cfgFile string) (*CLIConfig, error) {
	config := &CLIConfig{
		Log: LogConfig{
			Level:  constants.DefaultLogLevel,
			Format: constants.DefaultLogFormat,
		},
		Cache: CacheConfig{
			TTL: constants.DefaultCacheTTL,
		},
		Metrics: metrics.PrometheusConfig{
			Namespace: constants.MetricsNamespace,
		},
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".tabsynth")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log.level", config.Log.Level)
	v.SetDefault("log.format", config.Log.Format)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", config.Cache.TTL)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", constants.DefaultCacheKeyPrefix)
	setRedisDefaults(v, "cache.redis")
	v.SetDefault("metrics.namespace", config.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("source.query", "")
	v.SetDefault("generate.seed", 0)
	v.SetDefault("synth.bridge.command", "")
	v.SetDefault("synth.bridge.timeout", time.Duration(0))
	v.SetDefault("synth.bridge.work_dir", "")

	// Storage backends. Every leaf needs a default so TABSYNTH_* overrides
	// reach Unmarshal.
	v.SetDefault("storage.file.base_path", "")
	v.SetDefault("storage.file.create_dirs", true)
	v.SetDefault("storage.file.file_mode", 0)
	v.SetDefault("storage.file.sync_writes", false)
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.session_token", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.force_path_style", false)
	v.SetDefault("storage.s3.disable_ssl", false)
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.timeout", time.Duration(0))
	v.SetDefault("storage.s3.max_retries", 0)
	v.SetDefault("storage.s3.part_size", 0)
	v.SetDefault("storage.s3.storage_class", "")
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.key_prefix", "")
	setRedisDefaults(v, "storage.redis")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
				fmt.Sprintf("error reading config file %s", cfgFile))
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			"error unmarshaling config")
	}

	return config, nil
}

func setRedisDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".password", "")
	v.SetDefault(prefix+".db", 0)
	v.SetDefault(prefix+".dial_timeout", time.Duration(0))
	v.SetDefault(prefix+".read_timeout", time.Duration(0))
	v.SetDefault(prefix+".write_timeout", time.Duration(0))
	v.SetDefault(prefix+".pool_size", 0)
	v.SetDefault(prefix+".max_retries", 0)
	v.SetDefault(prefix+".ttl", time.Duration(0))
}

// NewLogger builds the invocation logger. Output goes to stderr so stdout
// stays reserved for JSON payloads.
func NewLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			fmt.Sprintf("invalid log level %q", level))
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("invalid log format %q, expected text or json", format))
	}

	return logger, nil
}

func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + string(os.PathSeparator) + ".tabsynth.yaml"
}
