package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// MergeConfig tunes placeholder synthesis and QC handling.
type MergeConfig struct {
	// TmpDir overrides the directory for placeholder temp files.
	// Empty means the system temp dir.
	TmpDir string

	QCTextProbe      bool
	QCTextThreshold  int
	QCPreviews       bool
	QCPreviewDPI     int
	QCPreviewQuality int
}

// WorkerConfig defines run worker behavior.
type WorkerConfig struct {
	Concurrency int
	// RunTimeout bounds a single folder run. Zero means no limit.
	RunTimeout time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// ArchiveConfig defines the optional S3 run archive.
type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	// Password enables client side encryption of archived files.
	Password string
}

// Enabled reports whether run archiving is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Merge   MergeConfig
	Worker  WorkerConfig
	Queue   QueueConfig
	Archive ArchiveConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/familymerge.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_familymerge",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Merge = MergeConfig{
		TmpDir:           getEnv("TMP_DIR", ""),
		QCTextProbe:      parseBool(getEnv("QC_TEXT_PROBE", "true")),
		QCTextThreshold:  parseInt(getEnv("QC_TEXT_THRESHOLD", "300"), 300),
		QCPreviews:       parseBool(getEnv("QC_PREVIEWS", "true")),
		QCPreviewDPI:     parseInt(getEnv("QC_PREVIEW_DPI", "96"), 96),
		QCPreviewQuality: parseInt(getEnv("QC_PREVIEW_QUALITY", "80"), 80),
	}

	// Folder runs are disk and CPU heavy, one at a time by default.
	cfg.Worker = WorkerConfig{
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "1"), 1),
		RunTimeout:  parseDuration(getEnv("RUN_TIMEOUT", "0"), 0),
	}

	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "runs:merge:folders"),
		Group:        getEnv("QUEUE_GROUP", "workers:merge"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "500ms"), 500*time.Millisecond),
	}

	cfg.Archive = ArchiveConfig{
		Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		Prefix:    getEnv("ARCHIVE_S3_PREFIX", "runs"),
		Region:    getEnv("ARCHIVE_S3_REGION", ""),
		AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		Password:  getEnv("ARCHIVE_PASSWORD", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
