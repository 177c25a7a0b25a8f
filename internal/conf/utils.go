package conf

import (
	"os"
	"path/filepath"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order. The first entry is where a default config is created.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	return []string{
		filepath.Join(homeDir, ".config", "cropdoc"),
		".",
		"/etc/cropdoc",
	}, nil
}
