// Package secrets resolves credentials from mounted secret files and
// environment references.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

const (
	// Secrets are tokens and passwords, not payloads.
	maxSecretFileSize = 64 * 1024

	// FileSuffix marks an environment variable holding a path to a secret
	// file, e.g. CROPDOC_AUTH_SECRET_FILE=/run/secrets/auth.
	FileSuffix = "_FILE"
)

// ExpandString replaces ${VAR} and ${VAR:-default} references with
// environment values. A reference without a default to an unset variable
// is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, as mounted by Docker or Kubernetes, and
// strips trailing newlines. Files readable by group or others are accepted
// with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", fileError("secret file path is empty", path, nil)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError("cannot stat secret file", clean, err)
	}
	if !info.Mode().IsRegular() {
		return "", fileError("secret path is not a regular file", clean, nil)
	}
	if info.Size() > maxSecretFileSize {
		return "", fileError(fmt.Sprintf("secret file larger than %d bytes", maxSecretFileSize), clean, nil)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError("cannot read secret file", clean, err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError("secret file is empty", clean, nil)
	}
	return secret, nil
}

// Resolve returns the secret for one setting. The file named by the
// envVar+FileSuffix environment variable wins over value; otherwise value
// is expanded with ExpandString.
func Resolve(envVar, value string) (string, error) {
	if path := os.Getenv(envVar + FileSuffix); path != "" {
		secret, err := ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%s%s: %w", envVar, FileSuffix, err)
		}
		return secret, nil
	}
	return ExpandString(value)
}

func fileError(msg, path string, cause error) error {
	err := errors.NewStd(msg)
	if cause != nil {
		err = fmt.Errorf("%s: %w", msg, cause)
	}
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
