package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr        = ":3000"
	DefaultOllamaHost        = "http://localhost:11434"
	DefaultOllamaModel       = "llama3"
	DefaultConsultInterval   = 5 * time.Second
	DefaultHeartbeatInterval = 33 * time.Millisecond
	DefaultRequestTimeout    = 10 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryBase         = 100 * time.Millisecond
	DefaultBreakerThreshold  = 5
	DefaultBreakerCooldown   = 30 * time.Second
	DefaultCacheSize         = 100
	DefaultCacheTTL          = 300 * time.Second
	DefaultBusBuffer         = 16
	DefaultSampleRate        = 44100
	DefaultChannels          = 2
	DefaultSampleFormat      = "s16le"
	DefaultBlockSize         = 1024
	DefaultLogLevel          = "info"
	DefaultMetricsDB         = "/var/lib/vibesd/metrics.db"
	DefaultMetricsInterval   = 10 * time.Second
	DefaultPIDFile           = "vibesd.pid"

	defaultEnvPrefix  = "VIBES"
	defaultConfigName = "vibesd"
	defaultConfigDir  = "/etc"
)

type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	OllamaHost  string `mapstructure:"ollama_host"`
	OllamaModel string `mapstructure:"ollama_model"`

	ConsultInterval   time.Duration `mapstructure:"consult_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryBase         time.Duration `mapstructure:"retry_base"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
	CacheSize         int           `mapstructure:"cache_size"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	BusBuffer         int           `mapstructure:"bus_buffer"`

	Capture      string `mapstructure:"capture"`
	SampleRate   int    `mapstructure:"sample_rate"`
	Channels     int    `mapstructure:"channels"`
	SampleFormat string `mapstructure:"sample_format"`
	BlockSize    int    `mapstructure:"block_size"`

	LogLevel        string        `mapstructure:"log_level"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	MetricsDB       string        `mapstructure:"metrics_db"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	PIDFile         string        `mapstructure:"pid_file"`
}

var defaults = map[string]any{
	"ollama_host":        DefaultOllamaHost,
	"ollama_model":       DefaultOllamaModel,
	"consult_interval":   DefaultConsultInterval,
	"heartbeat_interval": DefaultHeartbeatInterval,
	"request_timeout":    DefaultRequestTimeout,
	"retry_attempts":     DefaultRetryAttempts,
	"retry_base":         DefaultRetryBase,
	"breaker_threshold":  DefaultBreakerThreshold,
	"breaker_cooldown":   DefaultBreakerCooldown,
	"cache_size":         DefaultCacheSize,
	"cache_ttl":          DefaultCacheTTL,
	"bus_buffer":         DefaultBusBuffer,
	"capture":            "",
	"sample_rate":        DefaultSampleRate,
	"channels":           DefaultChannels,
	"sample_format":      DefaultSampleFormat,
	"block_size":         DefaultBlockSize,
	"log_level":          DefaultLogLevel,
	"metrics_enabled":    false,
	"metrics_db":         DefaultMetricsDB,
	"metrics_interval":   DefaultMetricsInterval,
	"pid_file":           DefaultPIDFile,
}

// Load reads configuration from, in order of precedence, command-line
// args, the environment, a TOML file and built-in defaults. args excludes
// the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: defaultEnvPrefix, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	prefix := strings.ToUpper(o.envPrefix)
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindEnv("listen_addr", prefix+"_LISTEN_ADDR")
	v.BindEnv("port", prefix+"_PORT", "PORT")
	v.BindEnv("ollama_host", prefix+"_OLLAMA_HOST", "OLLAMA_HOST")
	v.BindEnv("ollama_model", prefix+"_OLLAMA_MODEL", "OLLAMA_MODEL")

	if err := readConfigFile(v, configPath(fs, o, prefix)); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
		if port := v.GetString("port"); port != "" {
			cfg.ListenAddr = ":" + port
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("vibesd", pflag.ContinueOnError)

	fs.String("config", "", "Path to a TOML config file")
	fs.String("listen-addr", "", "HTTP/WebSocket listen address (default \""+DefaultListenAddr+"\")")
	fs.String("ollama-host", DefaultOllamaHost, "Base URL of the Ollama server")
	fs.String("ollama-model", DefaultOllamaModel, "Model used for creative direction")
	fs.Duration("consult-interval", DefaultConsultInterval, "How often the model is consulted")
	fs.String("capture", "", `Raw PCM input: "stdin" or a file path; empty runs without audio`)
	fs.Int("sample-rate", DefaultSampleRate, "Capture sample rate in Hz")
	fs.Int("channels", DefaultChannels, "Capture channel count")
	fs.String("sample-format", DefaultSampleFormat, "Capture sample format (f32le, f64le, s16le, u16le, s32le, u8)")
	fs.Int("block-size", DefaultBlockSize, "Frames per analysis block")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("metrics", false, "Persist AI metrics to sqlite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the metrics database")
	fs.String("pid-file", DefaultPIDFile, "PID file; relative names live in the temp dir")

	return fs
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"listen_addr":      "listen-addr",
		"ollama_host":      "ollama-host",
		"ollama_model":     "ollama-model",
		"consult_interval": "consult-interval",
		"capture":          "capture",
		"sample_rate":      "sample-rate",
		"channels":         "channels",
		"sample_format":    "sample-format",
		"block_size":       "block-size",
		"log_level":        "log-level",
		"metrics_enabled":  "metrics",
		"metrics_db":       "metrics-db",
		"pid_file":         "pid-file",
	}

	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func configPath(fs *pflag.FlagSet, o options, prefix string) string {
	if p, _ := fs.GetString("config"); p != "" {
		return p
	}
	if o.configPath != "" {
		return o.configPath
	}
	if p, ok := o.lookupEnv(prefix + "_CONFIG"); ok && p != "" {
		return p
	}
	return ""
}

// readConfigFile loads path, or the default file if path is empty. Only a
// missing default file is tolerated.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			return nil
		}
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if _, err := audio.ParseSampleFormat(c.SampleFormat); err != nil {
		return errFactory.WithData(errors.ErrInvalidFormat, c.SampleFormat)
	}

	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"consult_interval", c.ConsultInterval},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"request_timeout", c.RequestTimeout},
		{"retry_base", c.RetryBase},
		{"breaker_cooldown", c.BreakerCooldown},
		{"cache_ttl", c.CacheTTL},
		{"metrics_interval", c.MetricsInterval},
	}
	for _, iv := range intervals {
		if iv.value <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, iv.name+"="+iv.value.String())
		}
	}

	positives := []struct {
		name  string
		value int
	}{
		{"retry_attempts", c.RetryAttempts},
		{"breaker_threshold", c.BreakerThreshold},
		{"cache_size", c.CacheSize},
		{"bus_buffer", c.BusBuffer},
		{"sample_rate", c.SampleRate},
		{"channels", c.Channels},
		{"block_size", c.BlockSize},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, p.name)
		}
	}

	if c.OllamaHost == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "ollama_host")
	}
	if c.MetricsEnabled && c.MetricsDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics_db")
	}

	return nil
}
