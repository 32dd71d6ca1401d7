package log

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level   string          `mapstructure:"level" yaml:"level"`
	Pattern string          `mapstructure:"pattern" yaml:"pattern"`
	Time    string          `mapstructure:"time" yaml:"time"`
	File    FileAppenderOpt `mapstructure:"file" yaml:"file"`
}

const (
	DefaultPattern    = "%time [%level] %field %msg%n"
	DefaultTimeFormat = "2006-01-02 15:04:05"
)

// DefaultConfig returns an info level console-only configuration.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Pattern: DefaultPattern,
		Time:    DefaultTimeFormat,
	}
}
