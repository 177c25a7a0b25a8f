package diagnosis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// Order is the listing direction by creation time.
type Order string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// ParseOrder accepts "", "ASC" or "DESC" in any case. The empty string
// means ascending.
func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(OrderAsc):
		return OrderAsc, nil
	case string(OrderDesc):
		return OrderDesc, nil
	default:
		return "", invalidInput(fmt.Sprintf("order must be ASC or DESC, got %q", s))
	}
}

// Entry is a listed record with its primary disease expanded. When the
// disease cannot be expanded Descriptor is nil and Err says why; the other
// entries are unaffected.
type Entry struct {
	Record     datastore.DiagnosisRecord
	Descriptor *disease.Descriptor
	Err        error
}

// List returns the user's diagnoses ordered by creation time.
func (s *Service) List(ctx context.Context, userID string, order Order) ([]Entry, error) {
	filters := datastore.NewDiagnosisFilters(userID).WithDescending(order == OrderDesc)
	return s.list(ctx, filters)
}

// ListMonth returns the user's diagnoses created in the given calendar
// month of the configured time zone, oldest first.
func (s *Service) ListMonth(ctx context.Context, userID string, year, month int) ([]Entry, error) {
	from, until, err := MonthWindow(year, month, s.location)
	if err != nil {
		return nil, err
	}
	filters := datastore.NewDiagnosisFilters(userID).WithCreatedRange(from, until)
	return s.list(ctx, filters)
}

// MonthWindow returns the half-open interval [from, until) covering month
// in loc. Every instant up to and including the last second of the month
// is inside. December rolls over into January of the next year.
func MonthWindow(year, month int, loc *time.Location) (from, until time.Time, err error) {
	if month < 1 || month > 12 {
		return time.Time{}, time.Time{}, invalidInput(fmt.Sprintf("month must be 1-12, got %d", month))
	}
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, invalidInput(fmt.Sprintf("year out of range: %d", year))
	}
	if loc == nil {
		loc = time.Local
	}
	from = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	until = from.AddDate(0, 1, 0)
	return from, until, nil
}

func (s *Service) list(ctx context.Context, filters *datastore.DiagnosisFilters) ([]Entry, error) {
	if filters.UserID == "" {
		return nil, invalidInput("user id is required")
	}
	if _, err := s.users.GetUser(ctx, filters.UserID); err != nil {
		return nil, err
	}

	records, err := s.records.ListDiagnoses(ctx, filters)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, records)
}

// expand resolves the primary disease of every record with bounded
// concurrency. Entries keep the order of records.
func (s *Service) expand(ctx context.Context, records []datastore.DiagnosisRecord) ([]Entry, error) {
	entries := make([]Entry, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.listConcurrency)

	for i := range records {
		entries[i].Record = records[i]
		g.Go(func() error {
			rec := &entries[i].Record
			desc, err := s.resolver.Expand(gctx, rec.DiseaseID1, rec.ReferenceCode1)
			if err != nil {
				entries[i].Err = err
				s.metrics.RecordExpansionError(err)
				s.log.Warn("failed to expand diagnosis record",
					logger.Uint64("record_id", uint64(rec.ID)),
					logger.String("reference_code", rec.ReferenceCode1),
					logger.Error(err))
				return nil
			}
			entries[i].Descriptor = desc
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes the user's record and then its stored image. Deleting the
// image is best effort.
func (s *Service) Delete(ctx context.Context, userID string, recordID uint) error {
	if userID == "" || recordID == 0 {
		return invalidInput("user id and diagnosis id are required")
	}

	record, err := s.records.DeleteDiagnosis(ctx, recordID, userID)
	s.metrics.RecordDelete(err)
	if err != nil {
		return err
	}

	log := s.log.With(
		logger.String("user_id", userID),
		logger.Uint64("record_id", uint64(recordID)))
	if record.ImageKey == "" {
		log.Info("diagnosis deleted, no stored image to remove")
		return nil
	}
	if err := s.storage.Delete(ctx, record.ImageKey); err != nil {
		log.Warn("diagnosis deleted but image removal failed",
			logger.String("image_key", record.ImageKey),
			logger.Error(err))
		return nil
	}
	log.Info("diagnosis and image deleted", logger.String("image_key", record.ImageKey))
	return nil
}
