package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/secrets"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// Secrets and deployment specific values get explicit bindings; any other
// key can still be overridden through CROPDOC_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"ncpms.apikey", "CROPDOC_NCPMS_APIKEY", nil},
		{"ncpms.baseurl", "CROPDOC_NCPMS_BASEURL", validateEnvURL},
		{"auth.secret", "CROPDOC_AUTH_SECRET", validateEnvSecret},
		{"database.type", "CROPDOC_DATABASE_TYPE", nil},
		{"database.mysql.password", "CROPDOC_DATABASE_MYSQL_PASSWORD", nil},
		{"storage.minio.accesskey", "CROPDOC_STORAGE_MINIO_ACCESSKEY", nil},
		{"storage.minio.secretkey", "CROPDOC_STORAGE_MINIO_SECRETKEY", nil},
		{"storage.gcs.credentialsfile", "CROPDOC_STORAGE_GCS_CREDENTIALSFILE", nil},
		{"classifier.http.url", "CROPDOC_CLASSIFIER_URL", validateEnvURL},
		{"sentry.dsn", "CROPDOC_SENTRY_DSN", nil},
		{"webserver.port", "CROPDOC_PORT", validateEnvPort},
		{"debug", "CROPDOC_DEBUG", validateEnvBool},
	}
}

// secretFields maps the environment variable of each credential to its
// field. Setting <VAR>_FILE reads the credential from a mounted file.
func secretFields(s *Settings) map[string]*string {
	return map[string]*string{
		"CROPDOC_NCPMS_APIKEY":               &s.NCPMS.APIKey,
		"CROPDOC_AUTH_SECRET":                &s.Auth.Secret,
		"CROPDOC_DATABASE_MYSQL_PASSWORD":    &s.Database.MySQL.Password,
		"CROPDOC_STORAGE_MINIO_ACCESSKEY":    &s.Storage.MinIO.AccessKey,
		"CROPDOC_STORAGE_MINIO_SECRETKEY":    &s.Storage.MinIO.SecretKey,
		"CROPDOC_NOTIFICATION_MQTT_PASSWORD": &s.Notification.MQTT.Password,
		"CROPDOC_SENTRY_DSN":                 &s.Sentry.DSN,
	}
}

// resolveSecrets replaces credentials with the content of their secret
// files and expands ${VAR} references in them.
func resolveSecrets(s *Settings) error {
	for envVar, field := range secretFields(s) {
		value, err := secrets.Resolve(envVar, *field)
		if err != nil {
			return errors.New(fmt.Errorf("cannot resolve %s: %w", envVar, err)).
				Category(errors.CategoryConfiguration).
				Build()
		}
		*field = value
	}
	return nil
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	viper.SetEnvPrefix("CROPDOC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}
		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s: %v", binding.EnvVar, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvSecret(value string) error {
	if len(value) < minSecretLength {
		return fmt.Errorf("must be at least %d characters", minSecretLength)
	}
	return nil
}
