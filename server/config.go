package server

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/armon/go-metrics"
	"github.com/pkg/errors"
	"github.com/pressly/adaptimg"
	"github.com/pressly/adaptimg/responsive"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Bind        string `toml:"bind" yaml:"bind"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	CacheMaxAge int    `toml:"cache_max_age" yaml:"cache_max_age"`
	CacheDir    string `toml:"cache_dir" yaml:"cache_dir"`
	LockDir     string `toml:"lock_dir" yaml:"lock_dir"`
	SourceDir   string `toml:"source_dir" yaml:"source_dir"`
	URLPrefix   string `toml:"url_prefix" yaml:"url_prefix"`
	Profiler    bool   `toml:"profiler" yaml:"profiler"`

	// [ssl]
	SSL struct {
		Cert string `toml:"cert" yaml:"cert"`
		Key  string `toml:"key" yaml:"key"`
	} `toml:"ssl" yaml:"ssl"`

	// [limits]
	Limits struct {
		MaxRequests    int           `toml:"max_requests" yaml:"max_requests"`
		BacklogSize    int           `toml:"backlog_size" yaml:"backlog_size"`
		RequestTimeout time.Duration `toml:"-" yaml:"-"`
		BacklogTimeout time.Duration `toml:"-" yaml:"-"`
		MaxGenerators  int           `toml:"max_generators" yaml:"max_generators"`

		RequestTimeoutStr string `toml:"request_timeout" yaml:"request_timeout"`
		BacklogTimeoutStr string `toml:"backlog_timeout" yaml:"backlog_timeout"`
	} `toml:"limits" yaml:"limits"`

	// [resizer]
	Resizer struct {
		MaxAttempts int           `toml:"max_attempts" yaml:"max_attempts"`
		RetryDelay  time.Duration `toml:"-" yaml:"-"`

		RetryDelayStr string `toml:"retry_delay" yaml:"retry_delay"`
	} `toml:"resizer" yaml:"resizer"`

	// [output]
	Output struct {
		JPEGQuality          int  `toml:"jpeg_quality" yaml:"jpeg_quality"`
		JPEGProgressive      bool `toml:"jpeg_progressive" yaml:"jpeg_progressive"`
		PNGCompressionLevel  int  `toml:"png_compression_level" yaml:"png_compression_level"`
		PNGCompressionFilter int  `toml:"png_compression_filter" yaml:"png_compression_filter"`
	} `toml:"output" yaml:"output"`

	// [statsd]
	StatsD struct {
		Enabled     bool   `toml:"enabled" yaml:"enabled"`
		Address     string `toml:"address" yaml:"address"`
		ServiceName string `toml:"service_name" yaml:"service_name"`
	} `toml:"statsd" yaml:"statsd"`

	// [sentry]
	Sentry struct {
		DSN string `toml:"dsn" yaml:"dsn"`
	} `toml:"sentry" yaml:"sentry"`

	// [watch]
	Watch struct {
		Enabled  bool          `toml:"enabled" yaml:"enabled"`
		Debounce time.Duration `toml:"-" yaml:"-"`

		DebounceStr string `toml:"debounce" yaml:"debounce"`
	} `toml:"watch" yaml:"watch"`

	Classes    []ClassConfig     `toml:"classes" yaml:"classes"`
	Thumbnails []ThumbnailConfig `toml:"thumbnails" yaml:"thumbnails"`
}

// ClassConfig is one [[classes]] entry.
type ClassConfig struct {
	Name           string    `toml:"name" yaml:"name"`
	Widths         []int     `toml:"widths" yaml:"widths"`
	Sizes          string    `toml:"sizes" yaml:"sizes"`
	Height         string    `toml:"height" yaml:"height"`
	DefaultWidth   int       `toml:"default_width" yaml:"default_width"`
	Upscale        bool      `toml:"upscale" yaml:"upscale"`
	Mode           string    `toml:"mode" yaml:"mode"`
	ScaleAlgorithm string    `toml:"scale_algorithm" yaml:"scale_algorithm"`
	Sharpen        bool      `toml:"sharpen" yaml:"sharpen"`
	UnsharpMask    []float64 `toml:"unsharp_mask" yaml:"unsharp_mask"`
	Strip          bool      `toml:"strip" yaml:"strip"`
}

// ThumbnailConfig is one [[thumbnails]] entry.
type ThumbnailConfig struct {
	Name    string `toml:"name" yaml:"name"`
	Width   int    `toml:"width" yaml:"width"`
	Height  int    `toml:"height" yaml:"height"`
	Mode    string `toml:"mode" yaml:"mode"`
	Sharpen bool   `toml:"sharpen" yaml:"sharpen"`
}

var (
	ErrNoConfigFile = errors.New("no configuration file specified")

	DefaultConfig = Config{}
)

func init() {
	cf := Config{
		Bind:        "0.0.0.0:4446",
		LogLevel:    "INFO",
		CacheMaxAge: 0,
		CacheDir:    filepath.Join(os.TempDir(), "adaptimg", "cache"),
		LockDir:     "",
		SourceDir:   ".",
		URLPrefix:   "img",
		Profiler:    false,
	}

	cf.Limits.MaxRequests = 1000
	cf.Limits.BacklogSize = 5000
	cf.Limits.RequestTimeout = 45 * time.Second
	cf.Limits.BacklogTimeout = 1500 * time.Millisecond
	cf.Limits.MaxGenerators = 20

	cf.Resizer.MaxAttempts = adaptimg.DefaultMaxAttempts
	cf.Resizer.RetryDelay = adaptimg.DefaultRetryDelay

	cf.Output.JPEGQuality = adaptimg.DefaultJPEGQuality
	cf.Output.PNGCompressionLevel = adaptimg.DefaultPNGCompressionLevel
	cf.Output.PNGCompressionFilter = adaptimg.DefaultPNGCompressionFilter

	cf.Watch.Debounce = 500 * time.Millisecond

	DefaultConfig = cf
}

func NewConfig() *Config {
	cf := DefaultConfig
	return &cf
}

// NewConfigFromFile reads a .toml, .yaml or .yml file. confEnv is used
// when confFile is empty.
func NewConfigFromFile(confFile string, confEnv string) (*Config, error) {
	if confFile == "" {
		confFile = confEnv
	}
	if confFile == "" {
		return nil, ErrNoConfigFile
	}
	if _, err := os.Stat(confFile); os.IsNotExist(err) {
		return nil, ErrNoConfigFile
	}

	cf := NewConfig()

	switch strings.ToLower(filepath.Ext(confFile)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(confFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cf); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", confFile)
		}
	default:
		if _, err := toml.DecodeFile(confFile, cf); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", confFile)
		}
	}
	return cf, nil
}

func (cf *Config) Apply() error {
	// logging
	level, err := logrus.ParseLevel(strings.ToLower(cf.LogLevel))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	// durations
	if err := parseDuration(cf.Limits.RequestTimeoutStr, &cf.Limits.RequestTimeout); err != nil {
		return err
	}
	if err := parseDuration(cf.Limits.BacklogTimeoutStr, &cf.Limits.BacklogTimeout); err != nil {
		return err
	}
	if err := parseDuration(cf.Resizer.RetryDelayStr, &cf.Resizer.RetryDelay); err != nil {
		return err
	}
	if err := parseDuration(cf.Watch.DebounceStr, &cf.Watch.Debounce); err != nil {
		return err
	}

	if cf.CacheDir == "" {
		return errors.New("cache_dir must be set")
	}
	// derivatives below source_dir would be taken for sources
	inside, err := isWithin(cf.CacheDir, cf.SourceDir)
	if err != nil {
		return err
	}
	if inside {
		return errors.Errorf("cache_dir %s must not be inside source_dir %s", cf.CacheDir, cf.SourceDir)
	}
	cf.URLPrefix = strings.Trim(cf.URLPrefix, "/")
	if cf.URLPrefix == "" {
		return errors.New("url_prefix must not be empty")
	}
	if cf.Limits.MaxGenerators < 1 {
		cf.Limits.MaxGenerators = 1
	}

	names := map[string]bool{}
	for _, c := range cf.Thumbnails {
		if c.Name == "" || names[c.Name] {
			return errors.Errorf("thumbnail names must be unique and not empty, got %q", c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

// isWithin reports whether path is dir or below it.
func isWithin(path, dir string) (bool, error) {
	ap, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	ad, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(ad, ap)
	if err != nil {
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

func parseDuration(s string, d *time.Duration) error {
	if s == "" {
		return nil
	}
	to, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = to
	return nil
}

// OutputTypeMap builds the output options shared by all classes.
func (cf *Config) OutputTypeMap() *adaptimg.OutputTypeMap {
	m := adaptimg.NewOutputTypeMap()
	m.Set(adaptimg.TypeJPEG, adaptimg.JPEGOutput(cf.Output.JPEGQuality, cf.Output.JPEGProgressive))
	m.Set(adaptimg.TypePNG, adaptimg.PNGOutput(cf.Output.PNGCompressionLevel, cf.Output.PNGCompressionFilter))
	return m
}

// ImageClasses builds the configured responsive image classes.
func (cf *Config) ImageClasses() ([]*responsive.ImageClass, error) {
	outputTypes := cf.OutputTypeMap()

	classes := make([]*responsive.ImageClass, 0, len(cf.Classes))
	for _, cc := range cf.Classes {
		height, err := ParseHeightConstraint(cc.Height)
		if err != nil {
			return nil, errors.Wrapf(err, "class %q", cc.Name)
		}
		mode, err := adaptimg.ParseMode(cc.Mode)
		if err != nil {
			return nil, errors.Wrapf(err, "class %q", cc.Name)
		}
		alg, err := adaptimg.ParseScaleAlgorithm(cc.ScaleAlgorithm)
		if err != nil {
			return nil, errors.Wrapf(err, "class %q", cc.Name)
		}

		opts := responsive.ClassOptions{
			Name:           cc.Name,
			Widths:         cc.Widths,
			Sizes:          cc.Sizes,
			Height:         height,
			DefaultWidth:   cc.DefaultWidth,
			Upscale:        cc.Upscale,
			Mode:           mode,
			ScaleAlgorithm: alg,
			OutputTypes:    outputTypes,
		}
		if cc.Sharpen {
			opts.Filters = append(opts.Filters, adaptimg.NewSharpen())
		}
		if len(cc.UnsharpMask) > 0 {
			if len(cc.UnsharpMask) != 3 {
				return nil, errors.Wrapf(adaptimg.ErrInvalidDefinition, "class %q: unsharp_mask needs radius, amount and threshold", cc.Name)
			}
			um := cc.UnsharpMask
			opts.Filters = append(opts.Filters, adaptimg.NewUnsharpMask(um[0], um[1], um[2]))
		}
		if cc.Strip {
			opts.PostFilters = append(opts.PostFilters, adaptimg.NewStrip())
		}

		c, err := responsive.NewImageClass(opts)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// ThumbnailGenerators builds the configured thumbnail generators by name.
func (cf *Config) ThumbnailGenerators(resizer *adaptimg.ImageResizer) (map[string]*adaptimg.ThumbnailGenerator, error) {
	thumbs := make(map[string]*adaptimg.ThumbnailGenerator, len(cf.Thumbnails))
	for _, tc := range cf.Thumbnails {
		mode, err := adaptimg.ParseMode(tc.Mode)
		if err != nil {
			return nil, errors.Wrapf(err, "thumbnail %q", tc.Name)
		}
		var filters []adaptimg.Filter
		if tc.Sharpen {
			filters = append(filters, adaptimg.NewSharpen())
		}
		g, err := adaptimg.NewThumbnailGenerator(resizer, tc.Width, tc.Height, mode, filters...)
		if err != nil {
			return nil, errors.Wrapf(err, "thumbnail %q", tc.Name)
		}
		g.Definition().SetOutputTypeMap(cf.OutputTypeMap())
		thumbs[tc.Name] = g
	}
	return thumbs, nil
}

// ParseHeightConstraint reads "", "unbounded", "square" or a ratio such
// as "16:9".
func ParseHeightConstraint(s string) (responsive.HeightConstraint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded", "inf":
		return responsive.Unbounded, nil
	case "square":
		return responsive.Square, nil
	}
	w, h, ok := strings.Cut(s, ":")
	if !ok {
		return nil, errors.Wrapf(adaptimg.ErrInvalidDefinition, "invalid height %q", s)
	}
	rw, err1 := strconv.Atoi(strings.TrimSpace(w))
	rh, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || rw < 1 || rh < 1 {
		return nil, errors.Wrapf(adaptimg.ErrInvalidDefinition, "invalid height ratio %q", s)
	}
	return responsive.Ratio(rw, rh), nil
}

func (cf *Config) SetupStatsD() error {
	if cf.StatsD.Enabled {
		sink, err := metrics.NewStatsdSink(cf.StatsD.Address)
		if err != nil {
			return err
		}

		config := &metrics.Config{
			ServiceName:          cf.StatsD.ServiceName, // Client service name
			HostName:             "",
			EnableHostname:       true,             // Enable hostname prefix
			EnableRuntimeMetrics: true,             // Enable runtime profiling
			EnableTypePrefix:     false,            // Disable type prefix
			TimerGranularity:     time.Millisecond, // Timers are in milliseconds
			ProfileInterval:      time.Second * 60, // Poll runtime every minute
		}

		config.HostName, _ = os.Hostname()

		if _, err := metrics.NewGlobal(config, sink); err != nil {
			return errors.Wrap(err, "statsd")
		}
	}
	return nil
}
