package statuscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the subsystems serve mode leans on.
type Checker struct {
	redis         RedisPinger
	archiveBucket string
	tmpDir        string
}

// Options configures the Checker.
type Options struct {
	Redis         RedisPinger
	ArchiveBucket string
	TmpDir        string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses for the health endpoint.
type Summary struct {
	Redis   Status `json:"redis"`
	Archive Status `json:"archive"`
	TempDir Status `json:"temp_dir"`
}

// OK reports whether every required subsystem is up.
func (s Summary) OK() bool {
	return s.Redis.OK && s.Archive.OK && s.TempDir.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	tmp := opts.TmpDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	return &Checker{
		redis:         opts.Redis,
		archiveBucket: opts.ArchiveBucket,
		tmpDir:        tmp,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.checkRedis(ctx),
		Archive: c.checkArchive(ctx),
		TempDir: c.checkTempDir(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkArchive probes the configured archive bucket. Archiving is an
// optional feature, so an unset bucket reports healthy.
func (c *Checker) checkArchive(ctx context.Context) Status {
	if c.archiveBucket == "" {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	cli := s3.NewFromConfig(cfg)
	if _, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.archiveBucket}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkTempDir verifies placeholder synthesis has somewhere to write.
func (c *Checker) checkTempDir() Status {
	f, err := os.CreateTemp(c.tmpDir, "healthprobe_*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Status{OK: true, Message: filepath.Clean(c.tmpDir)}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
