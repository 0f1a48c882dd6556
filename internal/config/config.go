package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lupppig/bita/internal/chunker"
	"github.com/lupppig/bita/internal/compress"
	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/lupppig/bita/internal/hashsum"
	"github.com/lupppig/bita/internal/rolling"
	"github.com/lupppig/bita/internal/storage"
	"github.com/spf13/viper"
)

type Config struct {
	Chunker       ChunkerConfig `mapstructure:"chunker"`
	HashFunc      string        `mapstructure:"hash_func"`
	HashLength    int           `mapstructure:"hash_length"`
	Compression   string        `mapstructure:"compression"`
	HashWorkers   int           `mapstructure:"hash_workers"`
	FetchWorkers  int           `mapstructure:"fetch_workers"`
	MaxBatchBytes uint64        `mapstructure:"max_batch_bytes"`
	MaxGapBytes   uint64        `mapstructure:"max_gap_bytes"`
	AllowInsecure bool          `mapstructure:"allow_insecure"`
	LogJSON       bool          `mapstructure:"log_json"`
	LogLevel      string        `mapstructure:"log_level"`
	NoColor       bool          `mapstructure:"no_color"`
	HTTP          HTTPConfig    `mapstructure:"http"`
	// Archives are the locations `bita doctor` checks.
	Archives []string `mapstructure:"archives"`
}

type ChunkerConfig struct {
	Algorithm string `mapstructure:"algorithm"`
	MinSize   uint32 `mapstructure:"min_size"`
	AvgSize   uint32 `mapstructure:"avg_size"`
	MaxSize   uint32 `mapstructure:"max_size"`
	// FilterBits overrides AvgSize with an explicit mask width.
	FilterBits int    `mapstructure:"filter_bits"`
	WindowSize uint32 `mapstructure:"window_size"`
}

type HTTPConfig struct {
	Retries    int               `mapstructure:"retries"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	Headers    map[string]string `mapstructure:"headers"`
}

var (
	mu           sync.RWMutex
	globalConfig *Config
)

func Initialize(configPath string) error {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bita")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".bita"))
		}
	}

	v.SetEnvPrefix("BITA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return apperrors.Wrap(err, apperrors.TypeConfig, "failed to read config file", "Check the path given to --config.")
		}
	}

	cfg, err := load(v)
	if err != nil {
		return err
	}
	set(cfg)

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if cfg, err := load(v); err == nil {
				set(cfg)
			}
		})
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("chunker.algorithm", d.Chunker.Algorithm)
	v.SetDefault("chunker.min_size", d.Chunker.MinSize)
	v.SetDefault("chunker.avg_size", d.Chunker.AvgSize)
	v.SetDefault("chunker.max_size", d.Chunker.MaxSize)
	v.SetDefault("chunker.filter_bits", 0)
	v.SetDefault("chunker.window_size", d.Chunker.WindowSize)
	v.SetDefault("hash_func", d.HashFunc)
	v.SetDefault("hash_length", d.HashLength)
	v.SetDefault("compression", d.Compression)
	v.SetDefault("hash_workers", d.HashWorkers)
	v.SetDefault("fetch_workers", d.FetchWorkers)
	v.SetDefault("max_batch_bytes", d.MaxBatchBytes)
	v.SetDefault("max_gap_bytes", d.MaxGapBytes)
	v.SetDefault("allow_insecure", false)
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("no_color", false)
	v.SetDefault("http.retries", d.HTTP.Retries)
	v.SetDefault("http.retry_delay", d.HTTP.RetryDelay)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("archives", []string{})
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "failed to unmarshal config", "")
	}
	return &cfg, nil
}

func set(cfg *Config) {
	mu.Lock()
	globalConfig = cfg
	mu.Unlock()
}

// Default is the configuration used when no file or environment overrides
// anything.
func Default() *Config {
	return &Config{
		Chunker: ChunkerConfig{
			Algorithm:  rolling.AlgoBuzHash.String(),
			MinSize:    chunker.DefaultMinSize,
			AvgSize:    chunker.DefaultAvgSize,
			MaxSize:    chunker.DefaultMaxSize,
			WindowSize: chunker.DefaultWindowSize,
		},
		HashFunc:      hashsum.Blake2b.String(),
		HashLength:    hashsum.DefaultLength,
		Compression:   compress.DefaultCodec.String(),
		HashWorkers:   runtime.NumCPU(),
		FetchWorkers:  runtime.NumCPU(),
		MaxBatchBytes: 8 << 20,
		LogLevel:      "info",
		HTTP: HTTPConfig{
			Retries:    3,
			RetryDelay: time.Second,
			Timeout:    5 * time.Minute,
		},
	}
}

func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if globalConfig == nil {
		return Default()
	}
	return globalConfig
}

// ChunkerParams converts the chunker section into the parameters stored in
// an archive header.
func (c *Config) ChunkerParams() (chunker.Config, error) {
	algo, err := rolling.ParseAlgorithm(c.Chunker.Algorithm)
	if err != nil {
		return chunker.Config{}, apperrors.Wrap(err, apperrors.TypeConfig, "invalid chunker algorithm", "Use buzhash, rollsum or gear.")
	}
	mask := chunker.MaskForAverage(c.Chunker.AvgSize)
	if c.Chunker.FilterBits > 0 {
		if c.Chunker.FilterBits > 63 {
			return chunker.Config{}, apperrors.Newf(apperrors.TypeConfig, "filter bits %d out of range", c.Chunker.FilterBits)
		}
		mask = (uint64(1) << c.Chunker.FilterBits) - 1
	}
	cc := chunker.Config{
		Algorithm:  algo,
		MinSize:    c.Chunker.MinSize,
		MaxSize:    c.Chunker.MaxSize,
		Mask:       mask,
		WindowSize: c.Chunker.WindowSize,
	}
	if err := cc.Validate(); err != nil {
		return chunker.Config{}, err
	}
	return cc, nil
}

func (c *Config) Codec() (compress.Codec, error) {
	return compress.ParseCodec(c.Compression)
}

func (c *Config) Hash() (hashsum.Func, error) {
	f, err := hashsum.ParseFunc(c.HashFunc)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("invalid hash function %q", c.HashFunc), "Use blake2b or blake3.")
	}
	return f, nil
}

// StorageOptions carries the transport settings to storage.FromURI.
func (c *Config) StorageOptions() storage.StorageOptions {
	headers := make(map[string]string, len(c.HTTP.Headers))
	for k, v := range c.HTTP.Headers {
		headers[k] = v
	}
	return storage.StorageOptions{
		AllowInsecure: c.AllowInsecure,
		Headers:       headers,
		RetryCount:    c.HTTP.Retries,
		RetryDelay:    c.HTTP.RetryDelay,
		Timeout:       c.HTTP.Timeout,
	}
}
