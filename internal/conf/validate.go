package conf

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

const minSecretLength = 32

// ValidationError collects every problem found in the settings.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks the settings for missing or inconsistent values.
func ValidateSettings(s *Settings) error {
	ve := ValidationError{}

	if !slices.Contains([]string{"sqlite", "mysql"}, s.Database.Type) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("database.type %q must be sqlite or mysql", s.Database.Type))
	}
	if s.Database.Type == "sqlite" && s.Database.SQLite.Path == "" {
		ve.Errors = append(ve.Errors, "database.sqlite.path is required")
	}
	if s.Database.Type == "mysql" && (s.Database.MySQL.Host == "" || s.Database.MySQL.Database == "") {
		ve.Errors = append(ve.Errors, "database.mysql.host and database.mysql.database are required")
	}

	if s.NCPMS.APIKey == "" {
		ve.Errors = append(ve.Errors, "ncpms.apikey is required")
	}
	if s.NCPMS.RateLimit < 0 {
		ve.Errors = append(ve.Errors, "ncpms.ratelimit must not be negative")
	}

	switch s.Classifier.Backend {
	case "http":
		if s.Classifier.HTTP.URL == "" {
			ve.Errors = append(ve.Errors, "classifier.http.url is required")
		}
	case "tflite":
		if s.Classifier.TFLite.ModelPath == "" || s.Classifier.TFLite.LabelPath == "" {
			ve.Errors = append(ve.Errors, "classifier.tflite.modelpath and labelpath are required")
		}
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("classifier.backend %q must be http or tflite", s.Classifier.Backend))
	}

	switch s.Storage.Backend {
	case "minio":
		if s.Storage.MinIO.Endpoint == "" || s.Storage.MinIO.Bucket == "" {
			ve.Errors = append(ve.Errors, "storage.minio.endpoint and storage.minio.bucket are required")
		}
	case "gcs":
		if s.Storage.GCS.Bucket == "" {
			ve.Errors = append(ve.Errors, "storage.gcs.bucket is required")
		}
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("storage.backend %q must be minio or gcs", s.Storage.Backend))
	}

	if len(s.Auth.Secret) < minSecretLength {
		ve.Errors = append(ve.Errors, fmt.Sprintf("auth.secret must be at least %d characters", minSecretLength))
	}
	if s.Auth.Expiry <= 0 {
		ve.Errors = append(ve.Errors, "auth.expiry must be positive")
	}

	if len(s.Diagnosis.Crops) == 0 {
		ve.Errors = append(ve.Errors, "diagnosis.crops must list at least one crop")
	}
	if s.Diagnosis.ListConcurrency < 1 {
		s.Diagnosis.ListConcurrency = 1
	}

	if s.Notification.MQTT.Enabled && s.Notification.MQTT.Broker == "" {
		ve.Errors = append(ve.Errors, "notification.mqtt.broker is required when mqtt is enabled")
	}
	if s.Notification.Push.Enabled && len(s.Notification.Push.URLs) == 0 {
		ve.Errors = append(ve.Errors, "notification.push.urls is required when push is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
