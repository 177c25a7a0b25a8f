// Package conf loads and validates cropdoc configuration from YAML, defaults
// and environment variables.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for cropdoc.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name     string // name of this instance, reported to telemetry
		TimeZone string // IANA zone used for calendar month boundaries
	}

	Logging logger.LoggingConfig

	WebServer    WebServerSettings
	Database     DatabaseSettings
	NCPMS        NCPMSSettings
	Classifier   ClassifierSettings
	Storage      StorageSettings
	Auth         AuthSettings
	Diagnosis    DiagnosisSettings
	Resolver     ResolverSettings
	Notification NotificationSettings
	Sentry       SentrySettings

	Version   string `yaml:"-"` // set at build time
	BuildDate string `yaml:"-"`
}

// WebServerSettings contains HTTP server settings
type WebServerSettings struct {
	Port         string        // port to listen on
	BodyLimit    string        // maximum request body, echo syntax e.g. "10M"
	CORSOrigins  []string      // allowed CORS origins, empty allows all
	ReadTimeout  time.Duration // maximum duration for reading the request
	WriteTimeout time.Duration
	Metrics      bool // expose /metrics
}

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Type               string // sqlite or mysql
	SlowQueryThreshold time.Duration
	SQLite             struct {
		Path string // path to the SQLite database file
	}
	MySQL MySQLSettings
}

// MySQLSettings contains MySQL connection settings
type MySQLSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// NCPMSSettings configures the external crop disease reference service.
type NCPMSSettings struct {
	APIKey    string        // service API key, required
	BaseURL   string        // service endpoint
	Timeout   time.Duration // per-request timeout
	RateLimit float64       // requests per second, 0 disables limiting
	Burst     int
}

// ClassifierSettings selects the image classifier backend.
type ClassifierSettings struct {
	Backend string // http or tflite
	HTTP    struct {
		URL     string
		Timeout time.Duration
	}
	TFLite struct {
		ModelPath string
		LabelPath string
		Threads   int // 0 derives the thread count from the CPU
	}
}

// StorageSettings selects and configures image object storage.
type StorageSettings struct {
	Backend     string // minio or gcs
	Prefix      string // object key prefix
	MaxUploadMB int
	MinIO       MinIOSettings
	GCS         GCSSettings
}

// MinIOSettings contains S3-compatible storage settings
type MinIOSettings struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string // base of public object URLs, defaults to the endpoint
}

// GCSSettings contains Google Cloud Storage settings
type GCSSettings struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

// AuthSettings configures bearer token validation.
type AuthSettings struct {
	Secret string        // HS256 signing secret
	Expiry time.Duration // lifetime of issued tokens
	Issuer string
}

// DiagnosisSettings configures the diagnosis pipeline.
type DiagnosisSettings struct {
	Crops []string // supported crop allow-list
	// LegacyNotFound reports primary upstream failures as disease-not-found,
	// matching the behaviour of the first deployment.
	LegacyNotFound  bool
	ListConcurrency int // parallel record expansions when listing
}

// ResolverSettings configures disease resolution.
type ResolverSettings struct {
	CacheTTL time.Duration // 0 disables the resolution cache
}

// NotificationSettings configures post-diagnosis notifications.
type NotificationSettings struct {
	Timeout time.Duration
	Push    struct {
		Enabled bool
		URLs    []string // shoutrrr service URLs
	}
	MQTT struct {
		Enabled  bool
		Broker   string
		ClientID string
		Username string
		Password string
		Topic    string
	}
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	DSN         string
	Environment string
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads configuration from the default search paths.
func Load() (*Settings, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from configFile, or from the default search
// paths when configFile is empty, then applies environment overrides and
// validates the result.
func LoadFrom(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it.
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				fmt.Fprintf(os.Stderr, "error loading settings: %v\n", err)
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// Location returns the time zone used for calendar boundaries.
func (s *Settings) Location() *time.Location {
	if s.Main.TimeZone == "" || s.Main.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Main.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
