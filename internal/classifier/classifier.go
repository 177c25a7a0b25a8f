// Package classifier predicts plant diseases from leaf photos.
package classifier

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Guess is one ranked prediction. Confidence is an integer percentage.
type Guess struct {
	Confidence  int
	DiseaseName string
}

// Prediction holds the two best guesses of one classification.
type Prediction struct {
	Primary   Guess
	Secondary Guess
}

// Image is an encoded photo.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Classifier turns a photo of a crop into two ranked disease guesses.
type Classifier interface {
	Classify(ctx context.Context, img Image, crop string) (Prediction, error)
	Close() error
}

// New returns the backend selected by settings.Backend.
func New(settings *conf.ClassifierSettings) (Classifier, error) {
	switch settings.Backend {
	case "http":
		return NewHTTP(settings.HTTP.URL, settings.HTTP.Timeout)
	case "tflite":
		return NewTFLite(settings.TFLite.ModelPath, settings.TFLite.LabelPath, settings.TFLite.Threads)
	default:
		return nil, errors.Newf("unsupported classifier backend %q", settings.Backend).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// toPercent converts a score on a 0..1 or 0..100 scale to a truncated
// integer percentage.
func toPercent(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score <= 1 {
		score *= 100
	}
	return min(int(score), 100)
}

type scored struct {
	label string
	score float64
}

// topTwo returns the two highest scoring candidates, ties broken by input
// order.
func topTwo(candidates []scored) (Prediction, error) {
	if len(candidates) < 2 {
		return Prediction{}, failed(fmt.Errorf("need two predictions, got %d", len(candidates)))
	}
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	return Prediction{
		Primary:   Guess{Confidence: toPercent(ranked[0].score), DiseaseName: ranked[0].label},
		Secondary: Guess{Confidence: toPercent(ranked[1].score), DiseaseName: ranked[1].label},
	}, nil
}

func failed(err error) error {
	return errors.New(fmt.Errorf("%w: %w", errors.ErrClassifierFailed, err)).
		Component("classifier").
		Category(errors.CategoryClassification).
		Build()
}
