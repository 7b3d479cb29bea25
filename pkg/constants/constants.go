package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "tabsynth"
	AppDescription = "Privacy-safe synthetic tabular data pipeline"
	AppVersion     = "0.1.0"

	// Environment variable prefix for configuration
	EnvPrefix = "TABSYNTH"

	// Default configuration values
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Training defaults
const (
	DefaultAlgorithm          = "CTGAN"
	DefaultEpochs             = 300
	DefaultBatchSize          = 500
	DefaultLearningRate       = 0.0002
	DefaultDiscriminatorSteps = 1
)

// Sampling and evaluation defaults
const (
	DefaultGenerateCount = 1000
	DefaultEvalSamples   = 1000
	DefaultAnomalyRatio  = 0.05
)

// Profiling limits
const (
	// Columns with fewer distinct values than this are treated as categorical
	CategoricalUniqueThreshold = 20
	TopCategories              = 15
	HistogramBins              = 10
	MaxSampleRows              = 200
	SampleNullPlaceholder      = "null"
)

// PII detection limits
const (
	PIISampleValues = 10
)

// Semantic column types
const (
	SDTypeNumerical   = "numerical"
	SDTypeCategorical = "categorical"
	SDTypeDatetime    = "datetime"
)

// Model artifact layout
const (
	SidecarSuffix   = ".meta.toml"
	ArtifactVersion = 1
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "tabsynth"

// Cache defaults
const (
	DefaultCacheTTL       = 1 * time.Hour
	DefaultCacheKeyPrefix = "tabsynth:stats"
)

// Storage schemes
const (
	SchemeFile   = "file"
	SchemeS3     = "s3"
	SchemeRedis  = "redis"
	SchemePG     = "postgres"
	SchemePGAlt  = "postgresql"
	SchemeMySQL  = "mysql"
	SchemeSQLite = "sqlite"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)
