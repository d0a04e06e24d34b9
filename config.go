package perflog

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/Station-Manager/errors"
	"gopkg.in/yaml.v3"
)

// Config is the declarative logging configuration. A Manager copies the
// Config it is given; changing a Config after Setup or Reconfigure has no
// effect until it is passed to Reconfigure again.
type Config struct {
	// LogDir is the directory relative sink paths are resolved against.
	LogDir string `yaml:"log_dir" validate:"required"`
	// Format selects the record format of every sink: "line" or "structured".
	Format  string      `yaml:"format" validate:"omitempty,format"`
	Console ConsoleSpec `yaml:"console"`
	// RootLevel is the severity of the root logger.
	RootLevel string `yaml:"root_level" validate:"omitempty,severity"`
	// RootSinks are the sinks the root logger writes to, besides the console.
	RootSinks []string              `yaml:"root_sinks"`
	Sinks     map[string]SinkSpec   `yaml:"sinks" validate:"dive"`
	Loggers   map[string]LoggerSpec `yaml:"loggers" validate:"dive"`
	// Components maps an external component name to its minimum severity.
	Components map[string]string `yaml:"components" validate:"dive,severity"`
	// DrainTimeoutMS bounds how long Reconfigure and Cleanup wait for
	// in-flight events before closing writers.
	DrainTimeoutMS int `yaml:"drain_timeout_ms" validate:"gte=0"`
}

// ConsoleSpec configures the console (stderr) sink.
type ConsoleSpec struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,severity"`
	// Pretty renders the console with zerolog's ConsoleWriter instead of the
	// configured record format.
	Pretty bool `yaml:"pretty"`
}

// SinkSpec configures one file sink.
type SinkSpec struct {
	Name string `yaml:"name"`
	// Path is absolute or relative to Config.LogDir. Empty means
	// "<LogDir>/<Name>.log".
	Path        string `yaml:"path"`
	Level       string `yaml:"level" validate:"omitempty,severity"`
	MaxBytes    int64  `yaml:"max_bytes" validate:"gte=0"`
	BackupCount int    `yaml:"backup_count" validate:"gte=0"`
	Encoding    string `yaml:"encoding" validate:"omitempty,oneof=utf-8 utf8 ascii"`
	Enabled     bool   `yaml:"enabled"`
	// MaxAgeDays and Compress switch the sink to lumberjack rotation, which
	// rotates on whole megabytes and names backups by timestamp.
	MaxAgeDays int  `yaml:"max_age_days" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// LoggerSpec configures one logical logger.
type LoggerSpec struct {
	Name string `yaml:"name"`
	// Level empty inherits the parent logger's severity.
	Level     string   `yaml:"level" validate:"omitempty,severity"`
	Sinks     []string `yaml:"sinks"`
	Propagate bool     `yaml:"propagate"`
	Enabled   bool     `yaml:"enabled"`
}

// UnmarshalYAML defaults Enabled to true and Encoding to utf-8.
func (s *SinkSpec) UnmarshalYAML(node *yaml.Node) error {
	type plain SinkSpec
	p := plain{Enabled: true, Encoding: defaultEncoding}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = SinkSpec(p)
	return nil
}

// UnmarshalYAML defaults Enabled to true.
func (l *LoggerSpec) UnmarshalYAML(node *yaml.Node) error {
	type plain LoggerSpec
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*l = LoggerSpec(p)
	return nil
}

// DefaultConfig returns a configuration with an application sink and one
// sink per instrumentation category under dir. The sizes and counts are
// defaults, not contracts.
func DefaultConfig(dir string) Config {
	sink := func(name, level string) SinkSpec {
		return SinkSpec{
			Name:        name,
			Level:       level,
			MaxBytes:    defaultMaxBytes,
			BackupCount: defaultBackupCount,
			Encoding:    defaultEncoding,
			Enabled:     true,
		}
	}
	logger := func(name string) LoggerSpec {
		return LoggerSpec{Name: name, Level: "debug", Sinks: []string{name}, Enabled: true}
	}

	return Config{
		LogDir:    dir,
		Format:    FormatLine,
		Console:   ConsoleSpec{Enabled: true, Level: "warning"},
		RootLevel: "info",
		RootSinks: []string{LoggerApp},
		Sinks: map[string]SinkSpec{
			LoggerApp:         sink(LoggerApp, "debug"),
			LoggerPerformance: sink(LoggerPerformance, "debug"),
			LoggerMemory:      sink(LoggerMemory, "debug"),
			LoggerResources:   sink(LoggerResources, "debug"),
			LoggerErrors:      sink(LoggerErrors, "debug"),
		},
		Loggers: map[string]LoggerSpec{
			LoggerPerformance: logger(LoggerPerformance),
			LoggerMemory:      logger(LoggerMemory),
			LoggerResources:   logger(LoggerResources),
			LoggerErrors:      logger(LoggerErrors),
		},
		Components:     map[string]string{},
		DrainTimeoutMS: defaultDrainTimeoutMS,
	}
}

// LoadConfig reads a YAML configuration file layered over
// DefaultConfig("logs").
func LoadConfig(path string) (Config, error) {
	const op errors.Op = "perflog.LoadConfig"
	cfg := DefaultConfig("logs")

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(op).Err(err).Msg(errMsgConfigRead)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.New(op).Err(err).Msg(errMsgConfigParse)
	}
	return cfg, nil
}

// clone deep-copies the configuration and fills in names and defaults.
func (c Config) clone() Config {
	out := c
	if out.Format == emptyString {
		out.Format = FormatLine
	}
	if out.RootLevel == emptyString {
		out.RootLevel = "info"
	}
	if out.DrainTimeoutMS == 0 {
		out.DrainTimeoutMS = defaultDrainTimeoutMS
	}
	out.RootSinks = append([]string(nil), c.RootSinks...)

	out.Sinks = make(map[string]SinkSpec, len(c.Sinks))
	for name, s := range c.Sinks {
		if s.Name == emptyString {
			s.Name = name
		}
		if s.Encoding == emptyString {
			s.Encoding = defaultEncoding
		}
		out.Sinks[name] = s
	}

	out.Loggers = make(map[string]LoggerSpec, len(c.Loggers))
	for name, l := range c.Loggers {
		if l.Name == emptyString {
			l.Name = name
		}
		l.Sinks = append([]string(nil), l.Sinks...)
		out.Loggers[l.Name] = l
	}

	out.Components = make(map[string]string, len(c.Components))
	for name, lvl := range c.Components {
		out.Components[name] = lvl
	}
	return out
}

// sinkPath resolves a sink's file path against the log directory.
func (c Config) sinkPath(s SinkSpec) string {
	switch {
	case s.Path == emptyString:
		return filepath.Join(c.LogDir, s.Name+".log")
	case filepath.IsAbs(s.Path):
		return s.Path
	default:
		return filepath.Join(c.LogDir, s.Path)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
