package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openmined/thumbtree/internal/classify"
	"github.com/openmined/thumbtree/internal/errors"
	"github.com/openmined/thumbtree/internal/render"
	"github.com/openmined/thumbtree/internal/utils"
)

const (
	DefaultMaxWidth   = 1920
	DefaultMaxHeight  = 1200
	DefaultQuality    = 85
	DefaultVideoCRF   = 28
	DefaultWorkers    = 1
	DefaultWatchDelay = 2 * time.Second
)

var (
	home, _          = os.UserHomeDir()
	DefaultConfigDir = filepath.Join(home, ".config", "thumbtree")
)

type Config struct {
	Source string `mapstructure:"source" yaml:"source"`
	Dest   string `mapstructure:"dest" yaml:"dest"`

	MaxWidth  int `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight int `mapstructure:"max_height" yaml:"max_height"`
	Quality   int `mapstructure:"quality" yaml:"quality"`
	VideoCRF  int `mapstructure:"video_crf" yaml:"video_crf"`

	// Workers is the number of concurrent renders; 0 means one per physical core
	Workers int  `mapstructure:"workers" yaml:"workers"`
	DryRun  bool `mapstructure:"dry_run" yaml:"dry_run"`

	Watch      bool          `mapstructure:"watch" yaml:"watch"`
	WatchDelay time.Duration `mapstructure:"watch_delay" yaml:"watch_delay"`

	Tools          render.Tools        `mapstructure:"tools" yaml:"tools"`
	Extensions     classify.Extensions `mapstructure:"extensions" yaml:"extensions"`
	IgnorePatterns []string            `mapstructure:"ignore_patterns" yaml:"ignore_patterns,omitempty"`

	// Path is the config file the values were read from, if any
	Path string `mapstructure:"-" yaml:"-"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("max_width", DefaultMaxWidth)
	v.SetDefault("max_height", DefaultMaxHeight)
	v.SetDefault("quality", DefaultQuality)
	v.SetDefault("video_crf", DefaultVideoCRF)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("dry_run", false)
	v.SetDefault("watch", false)
	v.SetDefault("watch_delay", DefaultWatchDelay)
	v.SetDefault("tools.convert", render.DefaultTools.Convert)
	v.SetDefault("tools.ffmpeg", render.DefaultTools.FFmpeg)
	v.SetDefault("tools.rawtherapee", render.DefaultTools.RawTherapee)

	// list keys need a default so AutomaticEnv picks them up on Unmarshal
	v.SetDefault("ignore_patterns", []string{})
	for _, key := range []string{"raw", "image", "video", "copy", "ignore", "ignored_names"} {
		v.SetDefault("extensions."+key, []string{})
	}
}

// FromViper decodes the settings held by v. The result is not validated.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Configuration(v.ConfigFileUsed(), "decode: %v", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

// Validate normalizes paths and checks every setting. Workers = 0 is
// replaced by the number of physical cores.
func (c *Config) Validate() error {
	var err error
	if c.Source == "" || c.Dest == "" {
		return errors.Configuration("", "source and destination directories are required")
	}
	if c.Source, err = utils.ResolvePath(c.Source); err != nil {
		return errors.Configuration(c.Source, "source: %v", err)
	}
	if c.Dest, err = utils.ResolvePath(c.Dest); err != nil {
		return errors.Configuration(c.Dest, "dest: %v", err)
	}
	if utils.IsWithin(c.Source, c.Dest) {
		return errors.Configuration(c.Dest, "destination must not be inside the source tree %s", c.Source)
	}

	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		return errors.Configuration("max_width/max_height", "dimensions must be positive, got %dx%d", c.MaxWidth, c.MaxHeight)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return errors.Configuration("quality", "must be within 1..100, got %d", c.Quality)
	}
	if c.VideoCRF < 0 || c.VideoCRF > 51 {
		return errors.Configuration("video_crf", "must be within 0..51, got %d", c.VideoCRF)
	}
	if c.Workers < 0 {
		return errors.Configuration("workers", "must not be negative, got %d", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = physicalCores()
	}
	if c.Watch && c.WatchDelay <= 0 {
		return errors.Configuration("watch_delay", "must be positive, got %s", c.WatchDelay)
	}

	return nil
}

// RenderOptions returns the renderer settings of c
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		MaxWidth:  c.MaxWidth,
		MaxHeight: c.MaxHeight,
		Quality:   c.Quality,
		VideoCRF:  c.VideoCRF,
		Tools:     c.Tools,
	}
}

// YAML renders c the way it would be written in a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func physicalCores() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
