// Package config handles configuration loading using viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/log"
)

// Capture handle kinds.
const (
	CaptureAFPacket = "afpacket"
	CapturePcap     = "pcap"
	CaptureFile     = "file"
)

// MinWorkers is the smallest pool able to run scheduler, source and writer together.
const MinWorkers = 3

// Config represents the daemon configuration.
// Maps to the `xdump:` root key in YAML.
type Config struct {
	Interface     string           `mapstructure:"interface" yaml:"interface"`
	DataHome      string           `mapstructure:"data_home" yaml:"data_home"`
	StartTime     string           `mapstructure:"start_time" yaml:"start_time"`
	EndTime       string           `mapstructure:"end_time" yaml:"end_time"`
	ExcludedPorts []int            `mapstructure:"excluded_ports" yaml:"excluded_ports"`
	FilePrefix    string           `mapstructure:"file_prefix" yaml:"file_prefix"`
	Workers       int              `mapstructure:"workers" yaml:"workers"`
	PIDFile       string           `mapstructure:"pid_file" yaml:"pid_file"`
	Capture       CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Writer        WriterConfig     `mapstructure:"writer" yaml:"writer"`
	Log           log.LoggerConfig `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// CaptureConfig configures the capture handle and the frame queue.
type CaptureConfig struct {
	Type          string        `mapstructure:"type" yaml:"type"` // afpacket | pcap | file
	SnapLen       int           `mapstructure:"snap_len" yaml:"snap_len"`
	BufferSizeMB  int           `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	ReadInterval  time.Duration `mapstructure:"read_interval" yaml:"read_interval"` // 0 disables the idle delay
	QueueSize     int           `mapstructure:"queue_size" yaml:"queue_size"`
	Promiscuous   bool          `mapstructure:"promiscuous" yaml:"promiscuous"`
	BPFFilter     string        `mapstructure:"bpf_filter" yaml:"bpf_filter"`
	FilePath      string        `mapstructure:"file_path" yaml:"file_path"`           // type=file only
	DropFragments bool          `mapstructure:"drop_fragments" yaml:"drop_fragments"` // IPv4 non-initial fragments have no ports to check
}

// WriterConfig configures the capture file writer.
type WriterConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout" yaml:"drain_timeout"` // wait for the source to close the queue on shutdown
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// configRoot is the top-level wrapper matching the YAML structure `xdump: ...`.
type configRoot struct {
	Xdump Config `mapstructure:"xdump"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"interface":      "xdump.interface",
	"data-home":      "xdump.data_home",
	"start-time":     "xdump.start_time",
	"end-time":       "xdump.end_time",
	"excluded-ports": "xdump.excluded_ports",
	"file-prefix":    "xdump.file_prefix",
}

// RegisterFlags adds the configuration override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("interface", "i", "", "network interface to capture on")
	fs.StringP("data-home", "d", "", "directory receiving the capture files")
	fs.StringP("start-time", "s", "", "daily capture window start (HH:MM)")
	fs.StringP("end-time", "e", "", "daily capture window end (HH:MM)")
	fs.StringSliceP("excluded-ports", "x", nil, "TCP/UDP ports to drop, comma separated")
	fs.StringP("file-prefix", "p", "", "capture file name prefix")
}

// Load loads configuration from file, environment and flags.
// Precedence is flag > env > file > default. Env vars use the XDUMP_ prefix (e.g. XDUMP_DATA_HOME).
// A missing file is an error unless the config flag was left at its default.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || explicitConfig(flags) {
				return nil, fmt.Errorf("%w: failed to read config file: %v", core.ErrConfigInvalid, err)
			}
		}
	}

	// key "xdump.data_home" -> env "XDUMP_DATA_HOME"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.Xdump

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func explicitConfig(flags *pflag.FlagSet) bool {
	if flags == nil {
		return true
	}
	f := flags.Lookup("config")
	return f == nil || f.Changed
}

// setDefaults sets default values for configuration.
// All keys use "xdump." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("xdump.interface", "")
	v.SetDefault("xdump.data_home", "")
	v.SetDefault("xdump.start_time", "")
	v.SetDefault("xdump.end_time", "")
	v.SetDefault("xdump.excluded_ports", []int{})
	v.SetDefault("xdump.file_prefix", "xdump")
	v.SetDefault("xdump.workers", 4)
	v.SetDefault("xdump.pid_file", "")

	// Capture defaults
	v.SetDefault("xdump.capture.type", CaptureAFPacket)
	v.SetDefault("xdump.capture.snap_len", 65535)
	v.SetDefault("xdump.capture.buffer_size_mb", 8)
	v.SetDefault("xdump.capture.poll_timeout", 100*time.Millisecond)
	v.SetDefault("xdump.capture.read_interval", time.Millisecond)
	v.SetDefault("xdump.capture.queue_size", 128)
	v.SetDefault("xdump.capture.promiscuous", true)
	v.SetDefault("xdump.capture.bpf_filter", "")
	v.SetDefault("xdump.capture.file_path", "")
	v.SetDefault("xdump.capture.drop_fragments", false)

	v.SetDefault("xdump.writer.check_interval", time.Second)
	v.SetDefault("xdump.writer.drain_timeout", time.Second)

	// Log defaults
	v.SetDefault("xdump.log.level", "info")
	v.SetDefault("xdump.log.pattern", log.DefaultPattern)
	v.SetDefault("xdump.log.time", log.DefaultTimeFormat)
	v.SetDefault("xdump.log.file.enabled", false)
	v.SetDefault("xdump.log.file.path", "/var/log/xdump/xdump.log")
	v.SetDefault("xdump.log.file.max_size_mb", 100)
	v.SetDefault("xdump.log.file.max_backups", 5)
	v.SetDefault("xdump.log.file.max_age_days", 30)
	v.SetDefault("xdump.log.file.compress", true)

	// Metrics defaults
	v.SetDefault("xdump.metrics.enabled", false)
	v.SetDefault("xdump.metrics.listen", ":9091")
	v.SetDefault("xdump.metrics.path", "/metrics")
}

// Validate checks required fields and value ranges. Errors wrap core.ErrConfigInvalid.
func (cfg *Config) Validate() error {
	switch cfg.Capture.Type {
	case CaptureAFPacket, CapturePcap:
		if cfg.Interface == "" {
			return invalid("interface is required")
		}
	case CaptureFile:
		if cfg.Capture.FilePath == "" {
			return invalid("capture.file_path is required when capture.type=file")
		}
	default:
		return fmt.Errorf("%w: %q", core.ErrUnsupportedCaptureType, cfg.Capture.Type)
	}

	if cfg.DataHome == "" {
		return invalid("data_home is required")
	}
	if cfg.StartTime == "" || cfg.EndTime == "" {
		return invalid("start_time and end_time are required")
	}
	if cfg.FilePrefix == "" {
		return invalid("file_prefix is required")
	}
	for _, p := range cfg.ExcludedPorts {
		if p < 0 || p > 65535 {
			return invalid(fmt.Sprintf("excluded port %d out of range", p))
		}
	}
	if cfg.Capture.QueueSize <= 0 {
		return invalid("capture.queue_size must be positive")
	}
	if cfg.Capture.SnapLen <= 0 {
		return invalid("capture.snap_len must be positive")
	}
	if cfg.Capture.Type != CaptureFile && cfg.Capture.PollTimeout <= 0 {
		// live reads must return periodically so the source can observe shutdown
		return invalid("capture.poll_timeout must be positive")
	}
	if cfg.Capture.ReadInterval < 0 {
		return invalid("capture.read_interval must not be negative")
	}
	if cfg.Writer.CheckInterval <= 0 {
		return invalid("writer.check_interval must be positive")
	}
	if cfg.Writer.DrainTimeout < 0 {
		return invalid("writer.drain_timeout must not be negative")
	}
	if cfg.Workers < MinWorkers {
		return invalid(fmt.Sprintf("workers must be at least %d", MinWorkers))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return invalid(fmt.Sprintf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level))
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Filename == "" {
		return invalid("log.file.path is required when log.file.enabled=true")
	}
	return nil
}

// Ports returns the excluded ports as uint16 values.
func (cfg *Config) Ports() []uint16 {
	ports := make([]uint16, 0, len(cfg.ExcludedPorts))
	for _, p := range cfg.ExcludedPorts {
		ports = append(ports, uint16(p))
	}
	return ports
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, msg)
}
