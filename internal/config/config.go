package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel  = "info"
	defaultEnvPrefix = "DROIDMETRICS"
	configName       = "droidmetrics"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Debug     bool            `mapstructure:"debug"`
	Verbose   bool            `mapstructure:"verbose"`
	ADB       ADBConfig       `mapstructure:"adb"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Intervals IntervalsConfig `mapstructure:"collection_intervals"`
	Sampling  SamplingConfig  `mapstructure:"sampling"`
	Power     PowerConfig     `mapstructure:"power"`
	Writer    WriterConfig    `mapstructure:"writer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	API       APIConfig       `mapstructure:"api"`
}

type ADBConfig struct {
	Path                string        `mapstructure:"path"`
	Device              string        `mapstructure:"device"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RetryCount          int           `mapstructure:"retry_count"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
	MaxParallelCommands int           `mapstructure:"max_parallel_commands"`
	CommandCacheTTL     time.Duration `mapstructure:"command_cache_ttl"`
	SlowCommandFactor   float64       `mapstructure:"slow_command_factor"`
}

type CacheConfig struct {
	L1Size  int           `mapstructure:"l1_size"`
	L2Size  int           `mapstructure:"l2_size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type IntervalsConfig struct {
	System      time.Duration `mapstructure:"system"`
	AppBasic    time.Duration `mapstructure:"app_basic"`
	AppDetailed time.Duration `mapstructure:"app_detailed"`
	Network     time.Duration `mapstructure:"network"`
	DeviceInfo  time.Duration `mapstructure:"device_info"`
}

type SamplingConfig struct {
	BaseInterval           time.Duration `mapstructure:"base_interval"`
	Adaptive               bool          `mapstructure:"adaptive"`
	MinMultiplier          float64       `mapstructure:"min_multiplier"`
	MaxMultiplier          float64       `mapstructure:"max_multiplier"`
	EvaluationWindow       time.Duration `mapstructure:"evaluation_window"`
	History                int           `mapstructure:"history"`
	MinSamples             int           `mapstructure:"min_samples"`
	SlowRatio              float64       `mapstructure:"slow_ratio"`
	FastRatio              float64       `mapstructure:"fast_ratio"`
	GrowFactor             float64       `mapstructure:"grow_factor"`
	ShrinkFactor           float64       `mapstructure:"shrink_factor"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

type PowerConfig struct {
	Base                 float64 `mapstructure:"base"`
	CPUWeight            float64 `mapstructure:"cpu_weight"`
	CPUCap               float64 `mapstructure:"cpu_cap"`
	MemoryWeight         float64 `mapstructure:"memory_weight"`
	MemoryCap            float64 `mapstructure:"memory_cap"`
	ForegroundMultiplier float64 `mapstructure:"foreground_multiplier"`
	BackgroundMultiplier float64 `mapstructure:"background_multiplier"`
	NetworkBonus         float64 `mapstructure:"network_bonus"`
	Min                  float64 `mapstructure:"min"`
	Max                  float64 `mapstructure:"max"`
}

type QueueConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// WriterConfig holds the writer-wide thresholds and the per record type
// overrides. A zero field in a QueueConfig falls back to the writer-wide value.
type WriterConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	System        QueueConfig   `mapstructure:"system"`
	App           QueueConfig   `mapstructure:"app"`
	Network       QueueConfig   `mapstructure:"network"`
	FPS           QueueConfig   `mapstructure:"fps"`
	Power         QueueConfig   `mapstructure:"power"`
}

type StorageConfig struct {
	DBPath          string `mapstructure:"db_path"`
	BackupDir       string `mapstructure:"backup_dir"`
	BackupOnMigrate bool   `mapstructure:"backup_on_migrate"`
	RetentionDays   int    `mapstructure:"retention_days"`
}

type APIConfig struct {
	Listen    string  `mapstructure:"listen"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := defaultDataDir()

	return Config{
		LogLevel: DefaultLogLevel,
		ADB: ADBConfig{
			Path:                "adb",
			Timeout:             8 * time.Second,
			RetryCount:          1,
			RetryBackoff:        100 * time.Millisecond,
			MaxParallelCommands: 8,
			CommandCacheTTL:     30 * time.Second,
			SlowCommandFactor:   2,
		},
		Cache: CacheConfig{
			L1Size:  100,
			L2Size:  500,
			Timeout: 30 * time.Second,
		},
		Intervals: IntervalsConfig{
			System:      3 * time.Second,
			AppBasic:    2 * time.Second,
			AppDetailed: 5 * time.Second,
			Network:     4 * time.Second,
			DeviceInfo:  60 * time.Second,
		},
		Sampling: SamplingConfig{
			BaseInterval:           3 * time.Second,
			Adaptive:               true,
			MinMultiplier:          0.5,
			MaxMultiplier:          2.0,
			EvaluationWindow:       30 * time.Second,
			History:                10,
			MinSamples:             5,
			SlowRatio:              0.8,
			FastRatio:              0.3,
			GrowFactor:             1.2,
			ShrinkFactor:           0.9,
			MaxConsecutiveFailures: 3,
		},
		Power: PowerConfig{
			Base:                 5.0,
			CPUWeight:            0.8,
			CPUCap:               50,
			MemoryWeight:         0.02,
			MemoryCap:            20,
			ForegroundMultiplier: 1.8,
			BackgroundMultiplier: 0.4,
			NetworkBonus:         8.0,
			Min:                  0.1,
			Max:                  150,
		},
		Writer: WriterConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
			System:        QueueConfig{Capacity: 200, BatchSize: 50, FlushInterval: 5 * time.Second},
			App:           QueueConfig{Capacity: 500, BatchSize: 100, FlushInterval: 3 * time.Second},
			Network:       QueueConfig{Capacity: 300, BatchSize: 75, FlushInterval: 4 * time.Second},
			FPS:           QueueConfig{Capacity: 300, BatchSize: 75, FlushInterval: 4 * time.Second},
			Power:         QueueConfig{Capacity: 300, BatchSize: 75, FlushInterval: 6 * time.Second},
		},
		Storage: StorageConfig{
			DBPath:          filepath.Join(dataDir, "telemetry.db"),
			BackupDir:       filepath.Join(dataDir, "backups"),
			BackupOnMigrate: true,
			RetentionDays:   3,
		},
		API: APIConfig{
			Listen:    "127.0.0.1:8765",
			RateLimit: 5,
			RateBurst: 10,
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, configName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", configName)
	}

	return filepath.Join(os.TempDir(), configName)
}

// RegisterFlags adds the command line flags that Load knows how to bind.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.StringP("device", "s", "", "Target device serial (default: first connected device)")
	fs.String("adb", "adb", "Path to the adb binary")
	fs.Duration("adb-timeout", 8*time.Second, "Per-command timeout")
	fs.Int("max-parallel", 8, "Maximum concurrent device commands")
	fs.String("db", "", "Path to the telemetry database")
	fs.String("listen", "", "Address for the control API")
}

// flagKeys maps flag names to configuration keys
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"debug":        "debug",
	"verbose":      "verbose",
	"device":       "adb.device",
	"adb":          "adb.path",
	"adb-timeout":  "adb.timeout",
	"max-parallel": "adb.max_parallel_commands",
	"db":           "storage.db_path",
	"listen":       "api.listen",
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		if err := bindFlags(v, o.flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
		if f := o.flags.Lookup("config"); f != nil && f.Changed {
			o.configPath = f.Value.String()
		}
	}

	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	// Load configuration from file
	v.SetConfigType("toml")
	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
		v.AddConfigPath("/etc/" + configName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		// Unchanged flags must not shadow file values, so only bind what was set
		if !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("verbose", d.Verbose)

	v.SetDefault("adb.path", d.ADB.Path)
	v.SetDefault("adb.device", d.ADB.Device)
	v.SetDefault("adb.timeout", d.ADB.Timeout)
	v.SetDefault("adb.retry_count", d.ADB.RetryCount)
	v.SetDefault("adb.retry_backoff", d.ADB.RetryBackoff)
	v.SetDefault("adb.max_parallel_commands", d.ADB.MaxParallelCommands)
	v.SetDefault("adb.command_cache_ttl", d.ADB.CommandCacheTTL)
	v.SetDefault("adb.slow_command_factor", d.ADB.SlowCommandFactor)

	v.SetDefault("cache.l1_size", d.Cache.L1Size)
	v.SetDefault("cache.l2_size", d.Cache.L2Size)
	v.SetDefault("cache.timeout", d.Cache.Timeout)

	v.SetDefault("collection_intervals.system", d.Intervals.System)
	v.SetDefault("collection_intervals.app_basic", d.Intervals.AppBasic)
	v.SetDefault("collection_intervals.app_detailed", d.Intervals.AppDetailed)
	v.SetDefault("collection_intervals.network", d.Intervals.Network)
	v.SetDefault("collection_intervals.device_info", d.Intervals.DeviceInfo)

	v.SetDefault("sampling.base_interval", d.Sampling.BaseInterval)
	v.SetDefault("sampling.adaptive", d.Sampling.Adaptive)
	v.SetDefault("sampling.min_multiplier", d.Sampling.MinMultiplier)
	v.SetDefault("sampling.max_multiplier", d.Sampling.MaxMultiplier)
	v.SetDefault("sampling.evaluation_window", d.Sampling.EvaluationWindow)
	v.SetDefault("sampling.history", d.Sampling.History)
	v.SetDefault("sampling.min_samples", d.Sampling.MinSamples)
	v.SetDefault("sampling.slow_ratio", d.Sampling.SlowRatio)
	v.SetDefault("sampling.fast_ratio", d.Sampling.FastRatio)
	v.SetDefault("sampling.grow_factor", d.Sampling.GrowFactor)
	v.SetDefault("sampling.shrink_factor", d.Sampling.ShrinkFactor)
	v.SetDefault("sampling.max_consecutive_failures", d.Sampling.MaxConsecutiveFailures)

	v.SetDefault("power.base", d.Power.Base)
	v.SetDefault("power.cpu_weight", d.Power.CPUWeight)
	v.SetDefault("power.cpu_cap", d.Power.CPUCap)
	v.SetDefault("power.memory_weight", d.Power.MemoryWeight)
	v.SetDefault("power.memory_cap", d.Power.MemoryCap)
	v.SetDefault("power.foreground_multiplier", d.Power.ForegroundMultiplier)
	v.SetDefault("power.background_multiplier", d.Power.BackgroundMultiplier)
	v.SetDefault("power.network_bonus", d.Power.NetworkBonus)
	v.SetDefault("power.min", d.Power.Min)
	v.SetDefault("power.max", d.Power.Max)

	v.SetDefault("writer.batch_size", d.Writer.BatchSize)
	v.SetDefault("writer.flush_interval", d.Writer.FlushInterval)
	queues := map[string]QueueConfig{
		"system":  d.Writer.System,
		"app":     d.Writer.App,
		"network": d.Writer.Network,
		"fps":     d.Writer.FPS,
		"power":   d.Writer.Power,
	}
	for name, q := range queues {
		v.SetDefault("writer."+name+".capacity", q.Capacity)
		v.SetDefault("writer."+name+".batch_size", q.BatchSize)
		v.SetDefault("writer."+name+".flush_interval", q.FlushInterval)
	}

	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.backup_dir", d.Storage.BackupDir)
	v.SetDefault("storage.backup_on_migrate", d.Storage.BackupOnMigrate)
	v.SetDefault("storage.retention_days", d.Storage.RetentionDays)

	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.rate_burst", d.API.RateBurst)
}

// Validate checks the values that the collector cannot recover from at runtime
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.ADB.Timeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "adb.timeout must be positive")
	}
	if c.ADB.RetryCount < 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, "adb.retry_count must be at least 1")
	}
	if c.ADB.MaxParallelCommands < 1 {
		return errFactory.WithData(errors.ErrInvalidConfig, "adb.max_parallel_commands must be at least 1")
	}
	if c.Cache.L1Size < 1 || c.Cache.L2Size < c.Cache.L1Size {
		return errFactory.WithData(errors.ErrInvalidConfig, "cache sizes must satisfy 1 <= l1_size <= l2_size")
	}
	if c.Cache.Timeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "cache.timeout must be positive")
	}
	if c.Sampling.MinMultiplier <= 0 || c.Sampling.MaxMultiplier < c.Sampling.MinMultiplier {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling multipliers must satisfy 0 < min <= max")
	}
	intervals := []time.Duration{
		c.Intervals.System, c.Intervals.AppBasic, c.Intervals.AppDetailed,
		c.Intervals.Network, c.Intervals.DeviceInfo,
	}
	for _, d := range intervals {
		if d <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, d.String())
		}
	}

	return nil
}
