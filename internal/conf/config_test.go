package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	resetViper(t)
	path := writeConfig(t, `
ncpms:
  apikey: test-key
auth:
  secret: `+testSecret+`
`)

	s, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", s.Database.Type)
	assert.Equal(t, "cropdoc.db", s.Database.SQLite.Path)
	assert.Equal(t, "http://ncpms.rda.go.kr/npmsAPI/service", s.NCPMS.BaseURL)
	assert.Equal(t, 10*time.Second, s.NCPMS.Timeout)
	assert.Equal(t, 24*time.Hour, s.Auth.Expiry)
	assert.Equal(t, DefaultCrops, s.Diagnosis.Crops)
	assert.NotContains(t, s.Diagnosis.Crops, "grape")
	assert.False(t, s.Diagnosis.LegacyNotFound)
	assert.Zero(t, s.Resolver.CacheTTL)
	assert.Same(t, s, GetSettings())
}

func TestLoadFromEnvironmentOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("CROPDOC_NCPMS_APIKEY", "env-key")
	t.Setenv("CROPDOC_AUTH_SECRET", testSecret)
	t.Setenv("CROPDOC_RESOLVER_CACHETTL", "5m")
	path := writeConfig(t, `
database:
  type: sqlite
`)

	s, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", s.NCPMS.APIKey)
	assert.Equal(t, testSecret, s.Auth.Secret)
	assert.Equal(t, 5*time.Minute, s.Resolver.CacheTTL)
}

func TestLoadFromResolvesSecrets(t *testing.T) {
	resetViper(t)
	secretFile := filepath.Join(t.TempDir(), "auth_secret")
	require.NoError(t, os.WriteFile(secretFile, []byte(testSecret+"\n"), 0o600))
	t.Setenv("CROPDOC_AUTH_SECRET_FILE", secretFile)
	t.Setenv("NCPMS_VAULT_KEY", "vault-key")
	path := writeConfig(t, `
ncpms:
  apikey: ${NCPMS_VAULT_KEY}
auth:
  secret: overridden-by-file
`)

	s, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, testSecret, s.Auth.Secret)
	assert.Equal(t, "vault-key", s.NCPMS.APIKey)

	t.Run("missing reference", func(t *testing.T) {
		resetViper(t)
		_, err := LoadFrom(writeConfig(t, "ncpms:\n  apikey: ${CROPDOC_TEST_UNSET_KEY}\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CROPDOC_TEST_UNSET_KEY")
	})
}

func TestLoadFromRejectsInvalidEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("CROPDOC_PORT", "99999")

	_, err := LoadFrom(writeConfig(t, "debug: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CROPDOC_PORT")
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s := &Settings{}
		s.Database.Type = "sqlite"
		s.Database.SQLite.Path = "test.db"
		s.NCPMS.APIKey = "key"
		s.Classifier.Backend = "http"
		s.Classifier.HTTP.URL = "http://localhost/classify"
		s.Storage.Backend = "minio"
		s.Storage.MinIO.Endpoint = "localhost:9000"
		s.Storage.MinIO.Bucket = "bucket"
		s.Auth.Secret = testSecret
		s.Auth.Expiry = time.Hour
		s.Diagnosis.Crops = []string{"tomato"}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"unknown database", func(s *Settings) { s.Database.Type = "postgres" }, "database.type"},
		{"missing api key", func(s *Settings) { s.NCPMS.APIKey = "" }, "ncpms.apikey"},
		{"short secret", func(s *Settings) { s.Auth.Secret = "short" }, "auth.secret"},
		{"no crops", func(s *Settings) { s.Diagnosis.Crops = nil }, "diagnosis.crops"},
		{"tflite without model", func(s *Settings) { s.Classifier.Backend = "tflite" }, "classifier.tflite"},
		{"gcs without bucket", func(s *Settings) { s.Storage.Backend = "gcs" }, "storage.gcs.bucket"},
		{"mqtt without broker", func(s *Settings) { s.Notification.MQTT.Enabled = true }, "notification.mqtt.broker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 1, s.Diagnosis.ListConcurrency)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestEmbeddedDefaultConfigParses(t *testing.T) {
	resetViper(t)
	data, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)

	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader(string(data))))
	assert.Equal(t, "minio", viper.GetString("storage.backend"))
	assert.Len(t, viper.GetStringSlice("diagnosis.crops"), len(DefaultCrops))
}

func TestSettingsLocation(t *testing.T) {
	s := &Settings{}
	s.Main.TimeZone = "Asia/Seoul"
	assert.Equal(t, "Asia/Seoul", s.Location().String())

	s.Main.TimeZone = "Nowhere/Invalid"
	assert.Equal(t, time.Local, s.Location())
}
