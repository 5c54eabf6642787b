package git

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	platformerrors "github.com/jmgilman/go/errors"
)

// Defaults applied by DefaultConfig and LoadConfig.
const (
	// DefaultMirrorExpiration is how long an unused mirror survives before
	// the cleaner removes it.
	DefaultMirrorExpiration = 7 * 24 * time.Hour

	// DefaultCleanupInterval is the pause between cleaner passes.
	DefaultCleanupInterval = time.Hour

	// DefaultMaxCommitsWhenFromMissing caps the number of commits collected
	// when the lower bound of a version range is not present in the mirror.
	DefaultMaxCommitsWhenFromMissing = 75
)

// Config carries the tunables shared by the mirror manager, the cleaner and
// the change collector. The zero value is usable after DefaultConfig-style
// defaulting; LoadConfig applies the same defaulting to values read from a
// TOML file.
type Config struct {
	// CachesDir is the base directory holding all mirror directories.
	CachesDir string

	// MirrorExpiration is the idle time after which a mirror directory is
	// eligible for removal.
	MirrorExpiration time.Duration

	// CleanupInterval is the pause between periodic cleaner passes.
	CleanupInterval time.Duration

	// FetchTimeout bounds a single fetch, zero meaning no limit.
	FetchTimeout time.Duration

	// PerBranchFetch makes the collector issue one fetch per missing
	// branch instead of a single fetch carrying every missing ref.
	PerBranchFetch bool

	// MaxCommitsWhenFromMissing caps the walk when the from revision of a
	// version range cannot be found locally.
	MaxCommitsWhenFromMissing int

	// RepackOnCleanup makes the cleaner repack surviving mirrors after
	// removing expired ones.
	RepackOnCleanup bool
}

// DefaultConfig returns the configuration used when no file is present.
// CachesDir is left empty and must be supplied by the host.
func DefaultConfig() Config {
	return Config{
		MirrorExpiration:          DefaultMirrorExpiration,
		CleanupInterval:           DefaultCleanupInterval,
		MaxCommitsWhenFromMissing: DefaultMaxCommitsWhenFromMissing,
	}
}

// duration is a TOML shim so durations can be written as "36h" or "90s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// rawConfig is the TOML shape of Config before defaulting and validation.
type rawConfig struct {
	CachesDir                 string   `toml:"caches_dir"`
	MirrorExpiration          duration `toml:"mirror_expiration"`
	CleanupInterval           duration `toml:"cleanup_interval"`
	FetchTimeout              duration `toml:"fetch_timeout"`
	PerBranchFetch            bool     `toml:"per_branch_fetch"`
	MaxCommitsWhenFromMissing int      `toml:"max_commits_when_from_missing"`
	RepackOnCleanup           bool     `toml:"repack_on_cleanup"`
}

// LoadConfig reads a TOML configuration file. A missing file is not an
// error: the defaults are returned. Zero durations and counts are replaced
// with their defaults, so a partial file only overrides what it names.
//
// Example:
//
//	cfg, err := git.LoadConfig("/etc/teamcity/git-mirrors.toml")
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return DefaultConfig(), platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "failed to read config file %s", path)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return DefaultConfig(), platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "failed to parse config file %s", path)
	}

	cfg := Config{
		CachesDir:                 raw.CachesDir,
		MirrorExpiration:          raw.MirrorExpiration.Duration,
		CleanupInterval:           raw.CleanupInterval.Duration,
		FetchTimeout:              raw.FetchTimeout.Duration,
		PerBranchFetch:            raw.PerBranchFetch,
		MaxCommitsWhenFromMissing: raw.MaxCommitsWhenFromMissing,
		RepackOnCleanup:           raw.RepackOnCleanup,
	}

	if err := cfg.validate(); err != nil {
		return DefaultConfig(), err
	}

	return cfg.WithDefaults(), nil
}

func (c Config) validate() error {
	if c.CachesDir != "" && !filepath.IsAbs(c.CachesDir) {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "caches_dir must be absolute, got %q", c.CachesDir)
	}
	if c.MirrorExpiration < 0 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "mirror_expiration must not be negative")
	}
	if c.CleanupInterval < 0 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "cleanup_interval must not be negative")
	}
	if c.FetchTimeout < 0 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "fetch_timeout must not be negative")
	}
	if c.MaxCommitsWhenFromMissing < 0 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "max_commits_when_from_missing must not be negative")
	}
	return nil
}

// WithDefaults returns a copy with zero durations and counts replaced by the
// package defaults. CachesDir is left alone: there is no sensible default for
// it and consumers reject an empty one.
func (c Config) WithDefaults() Config {
	if c.MirrorExpiration == 0 {
		c.MirrorExpiration = DefaultMirrorExpiration
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxCommitsWhenFromMissing == 0 {
		c.MaxCommitsWhenFromMissing = DefaultMaxCommitsWhenFromMissing
	}
	return c
}
