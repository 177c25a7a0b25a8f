package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"defaultlevel"` // default level for all modules
	Timezone     string            `yaml:"timezone"`     // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput    `yaml:"console"`
	FileOutput   *FileOutput       `yaml:"fileoutput"`
	ModuleLevels map[string]string `yaml:"modulelevels"` // per-module level overrides
}

// ConsoleOutput configures console logging. Text output omits timestamps;
// the process supervisor adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"` // emit JSON instead of text, for container log collectors
}

// FileOutput configures JSON file logging.
type FileOutput struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Level   string `yaml:"level"`
}

const (
	DefaultLogLevel = "info"
	DefaultLogPath  = "logs/cropdoc.log"
)

// applyConfigDefaults fills nil sections so an empty config still logs to
// the console.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.DefaultLevel
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		if cfg.FileOutput.Path == "" {
			cfg.FileOutput.Path = DefaultLogPath
		}
		if cfg.FileOutput.Level == "" {
			cfg.FileOutput.Level = cfg.DefaultLevel
		}
	}
}
