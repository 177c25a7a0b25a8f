// Package diagnosis runs the photo diagnosis pipeline and answers queries
// over stored diagnoses.
//
// A diagnosis uploads the photo, classifies it, resolves the two guesses and
// stores a record. When a step after the upload fails the uploaded image is
// deleted again so no orphaned object is left behind.
package diagnosis

import (
	"context"
	"strings"
	"time"

	"github.com/nongbuhae/cropdoc/internal/classifier"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/notification"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
	"github.com/nongbuhae/cropdoc/internal/storage"
)

const (
	defaultListConcurrency = 4
	compensationTimeout    = 30 * time.Second
)

// Users checks that a requesting user exists.
type Users interface {
	GetUser(ctx context.Context, id string) (*datastore.User, error)
}

// Records persists and queries diagnosis records.
type Records interface {
	SaveDiagnosis(ctx context.Context, record *datastore.DiagnosisRecord) error
	ListDiagnoses(ctx context.Context, filters *datastore.DiagnosisFilters) ([]datastore.DiagnosisRecord, error)
	DeleteDiagnosis(ctx context.Context, id uint, userID string) (*datastore.DiagnosisRecord, error)
}

// Resolver turns disease names and stored identities into descriptors.
type Resolver interface {
	Resolve(ctx context.Context, crop, name string) (*disease.Resolution, error)
	Describe(ctx context.Context, crop, name string) (*disease.Descriptor, error)
	Expand(ctx context.Context, diseaseID *string, referenceCode string) (*disease.Descriptor, error)
}

// Notifier receives a notification after each stored diagnosis. Notify
// must not block.
type Notifier interface {
	Notify(n *notification.Notification)
}

// Config holds the pipeline options.
type Config struct {
	Crops []string // supported crop allow-list
	// LegacyNotFound reports a primary upstream failure as
	// errors.ErrDiseaseNotFound instead of errors.ErrUpstreamUnavailable.
	LegacyNotFound  bool
	ListConcurrency int
	Location        *time.Location // calendar month boundaries, defaults to time.Local
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		Crops:           settings.Diagnosis.Crops,
		LegacyNotFound:  settings.Diagnosis.LegacyNotFound,
		ListConcurrency: settings.Diagnosis.ListConcurrency,
		Location:        settings.Location(),
	}
}

// Deps are the collaborators of a Service. Notifier and Metrics are
// optional.
type Deps struct {
	Users      Users
	Records    Records
	Storage    storage.Store
	Classifier classifier.Classifier
	Resolver   Resolver
	Notifier   Notifier
	Metrics    *metrics.DiagnosisMetrics
}

// Service implements diagnosis, listing and deletion.
type Service struct {
	crops           map[string]struct{}
	legacyNotFound  bool
	listConcurrency int
	location        *time.Location

	users      Users
	records    Records
	storage    storage.Store
	classifier classifier.Classifier
	resolver   Resolver
	notifier   Notifier
	metrics    *metrics.DiagnosisMetrics

	now func() time.Time
	log logger.Logger
}

// NewService creates a Service. All Deps except Notifier and Metrics are
// required.
func NewService(cfg Config, deps Deps) (*Service, error) {
	switch {
	case deps.Users == nil, deps.Records == nil, deps.Storage == nil,
		deps.Classifier == nil, deps.Resolver == nil:
		return nil, errors.Newf("diagnosis service is missing a dependency").
			Component("diagnosis").
			Category(errors.CategoryConfiguration).
			Build()
	case len(cfg.Crops) == 0:
		return nil, errors.Newf("diagnosis crop allow-list is empty").
			Component("diagnosis").
			Category(errors.CategoryConfiguration).
			Build()
	}

	crops := make(map[string]struct{}, len(cfg.Crops))
	for _, c := range cfg.Crops {
		crops[disease.NormalizeCrop(c)] = struct{}{}
	}
	concurrency := cfg.ListConcurrency
	if concurrency <= 0 {
		concurrency = defaultListConcurrency
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Service{
		crops:           crops,
		legacyNotFound:  cfg.LegacyNotFound,
		listConcurrency: concurrency,
		location:        loc,
		users:           deps.Users,
		records:         deps.Records,
		storage:         deps.Storage,
		classifier:      deps.Classifier,
		resolver:        deps.Resolver,
		notifier:        deps.Notifier,
		metrics:         deps.Metrics,
		now:             time.Now,
		log:             logger.Global().Module("diagnosis"),
	}, nil
}

// SupportsCrop reports whether crop is in the allow-list.
func (s *Service) SupportsCrop(crop string) bool {
	_, ok := s.crops[disease.NormalizeCrop(crop)]
	return ok
}

// About describes a disease of crop by name, preferring the local table.
func (s *Service) About(ctx context.Context, crop, name string) (*disease.Descriptor, error) {
	crop, name = strings.TrimSpace(crop), strings.TrimSpace(name)
	if crop == "" || name == "" {
		return nil, errors.New(errors.ErrInvalidInput).
			Component("diagnosis").
			Context("operation", "about").
			Build()
	}
	return s.resolver.Describe(ctx, crop, name)
}
