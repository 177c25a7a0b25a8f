// Package seed loads curated reference diseases from a YAML file.
package seed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/disease"
)

// File is the layout of a seed file.
type File struct {
	Diseases []Entry `yaml:"diseases"`
}

// Entry is one reference disease.
type Entry struct {
	ID          string `yaml:"id"`
	Crop        string `yaml:"crop"`
	Name        string `yaml:"name"`
	EnglishName string `yaml:"englishName"`
	Condition   string `yaml:"condition"`
	Symptoms    string `yaml:"symptoms"`
	Prevention  string `yaml:"prevention"`
	ImageURL    string `yaml:"imageUrl"`
}

// Command creates the seed command.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Upsert reference diseases from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()

			rows, err := Parse(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d diseases are valid\n", len(rows))
				return nil
			}

			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertDiseases(cmd.Context(), rows); err != nil {
				return err
			}
			total, err := store.CountDiseases(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d diseases, %d in total\n", len(rows), total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing")
	return cmd
}

// Parse decodes and validates a seed file. Crop and disease names are
// normalised the same way lookups are, so decomposed Hangul in the file
// still matches.
func Parse(r io.Reader) ([]datastore.Disease, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}

	rows := make([]datastore.Disease, 0, len(file.Diseases))
	ids := make(map[string]int, len(file.Diseases))
	names := make(map[string]int, len(file.Diseases))
	for i, e := range file.Diseases {
		pos := i + 1
		id := strings.TrimSpace(e.ID)
		crop := disease.NormalizeCrop(e.Crop)
		name := disease.NormalizeName(e.Name)
		if id == "" || crop == "" || name == "" {
			return nil, fmt.Errorf("disease %d: id, crop and name are required", pos)
		}
		if prev, ok := ids[id]; ok {
			return nil, fmt.Errorf("disease %d: id %q already used by disease %d", pos, id, prev)
		}
		key := crop + "\x00" + name
		if prev, ok := names[key]; ok {
			return nil, fmt.Errorf("disease %d: %s/%s already defined by disease %d", pos, crop, name, prev)
		}
		ids[id] = pos
		names[key] = pos

		rows = append(rows, datastore.Disease{
			ID:          id,
			Crop:        crop,
			Name:        name,
			EnglishName: strings.TrimSpace(e.EnglishName),
			Condition:   strings.TrimSpace(e.Condition),
			Symptoms:    strings.TrimSpace(e.Symptoms),
			Prevention:  strings.TrimSpace(e.Prevention),
			ImageURL:    strings.TrimSpace(e.ImageURL),
		})
	}
	return rows, nil
}
