package diagnosis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nongbuhae/cropdoc/internal/classifier"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/notification"
	"github.com/nongbuhae/cropdoc/internal/observability/metrics"
	"github.com/nongbuhae/cropdoc/internal/storage"
)

// State is a step of the diagnosis pipeline.
type State string

const (
	StateValidatingCrop     State = "ValidatingCrop"
	StateUploading          State = "Uploading"
	StateClassifying        State = "Classifying"
	StateResolvingPrimary   State = "ResolvingPrimary"
	StateResolvingSecondary State = "ResolvingSecondary"
	StatePersisting         State = "Persisting"
	StateDone               State = "Done"
	StateCompensating       State = "Compensating"
	StateRejected           State = "Rejected"
)

// Request is one photo submitted for diagnosis.
type Request struct {
	UserID      string
	Crop        string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is a stored diagnosis. Only the primary guess is described.
type Result struct {
	Descriptor disease.Descriptor
	Source     disease.Source
	Record     *datastore.DiagnosisRecord
}

// pipeline carries the state of one Diagnose call.
type pipeline struct {
	req      Request
	crop     string
	state    State
	failedIn State
	log      logger.Logger

	object     *storage.Object
	prediction classifier.Prediction
	primary    *disease.Resolution
	secondary  *disease.Resolution
}

func (p *pipeline) enter(state State) {
	p.state = state
	p.log.Debug("diagnosis state", logger.String("state", string(state)))
}

// Diagnose runs the pipeline for req.
//
// Errors: errors.ErrInvalidInput, errors.ErrInvalidCrop,
// errors.ErrUserNotFound, errors.ErrUploadFailed,
// errors.ErrClassifierFailed, errors.ErrDiseaseNotFound,
// errors.ErrUpstreamUnavailable or a persistence error. Every failure after
// a successful upload deletes the uploaded image before returning.
func (s *Service) Diagnose(ctx context.Context, req Request) (res *Result, err error) {
	start := s.now()
	s.metrics.DiagnosisStarted()
	defer func() { s.metrics.RecordDiagnosis(err, s.now().Sub(start)) }()

	p := &pipeline{
		req:  req,
		crop: disease.NormalizeCrop(req.Crop),
		log: s.log.WithContext(ctx).With(
			logger.String("user_id", req.UserID),
			logger.String("crop", req.Crop)),
	}

	p.enter(StateValidatingCrop)
	if err := s.validate(p); err != nil {
		return nil, s.reject(p, err)
	}
	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, s.reject(p, err)
	}

	p.enter(StateUploading)
	if err := s.upload(ctx, p); err != nil {
		return nil, s.reject(p, err)
	}

	p.enter(StateClassifying)
	if err := s.classify(ctx, p); err != nil {
		return nil, s.compensate(ctx, p, err)
	}

	p.enter(StateResolvingPrimary)
	if err := s.resolve(ctx, p); err != nil {
		return nil, s.compensate(ctx, p, err)
	}

	p.enter(StatePersisting)
	record := s.buildRecord(p)
	persistStart := s.now()
	err = s.records.SaveDiagnosis(ctx, record)
	s.metrics.RecordStage(metrics.StagePersist, s.now().Sub(persistStart))
	if err != nil {
		return nil, s.compensate(ctx, p, err)
	}

	p.enter(StateDone)
	p.log.Info("diagnosis stored",
		logger.Uint64("record_id", uint64(record.ID)),
		logger.String("disease", p.primary.Descriptor.Name),
		logger.String("source", string(p.primary.Source)),
		logger.Bool("secondary_resolved", p.secondary != nil))
	s.notify(p, record)

	return &Result{
		Descriptor: p.primary.Descriptor,
		Source:     p.primary.Source,
		Record:     record,
	}, nil
}

func (s *Service) validate(p *pipeline) error {
	switch {
	case p.req.UserID == "":
		return invalidInput("user id is required")
	case p.crop == "":
		return invalidInput("crop is required")
	case len(p.req.Data) == 0:
		return invalidInput("image is required")
	}
	if err := storage.ValidateContentType(p.req.ContentType); err != nil {
		return err
	}
	if !s.SupportsCrop(p.crop) {
		return errors.New(fmt.Errorf("%w: %s is not supported", errors.ErrInvalidCrop, p.crop)).
			Component("diagnosis").
			Category(errors.CategoryValidation).
			Context("crop", p.crop).
			Build()
	}
	return nil
}

func (s *Service) upload(ctx context.Context, p *pipeline) error {
	start := s.now()
	obj, err := s.storage.Upload(ctx, storage.Upload{
		Filename:    p.req.Filename,
		ContentType: p.req.ContentType,
		Data:        p.req.Data,
	})
	s.metrics.RecordStage(metrics.StageUpload, s.now().Sub(start))
	if err != nil {
		if !errors.Is(err, errors.ErrUploadFailed) {
			err = fmt.Errorf("%w: %w", errors.ErrUploadFailed, err)
		}
		return err
	}
	p.object = &obj
	p.log = p.log.With(logger.String("image_key", obj.Key))
	return nil
}

func (s *Service) classify(ctx context.Context, p *pipeline) error {
	start := s.now()
	pred, err := s.classifier.Classify(ctx, classifier.Image{
		Filename:    p.req.Filename,
		ContentType: p.req.ContentType,
		Data:        p.req.Data,
	}, p.crop)
	s.metrics.RecordStage(metrics.StageClassify, s.now().Sub(start))
	if err != nil {
		if !errors.Is(err, errors.ErrClassifierFailed) {
			err = fmt.Errorf("%w: %w", errors.ErrClassifierFailed, err)
		}
		return err
	}
	p.prediction = pred
	p.log.Debug("classified",
		logger.String("primary", pred.Primary.DiseaseName),
		logger.Int("confidence1", pred.Primary.Confidence),
		logger.String("secondary", pred.Secondary.DiseaseName),
		logger.Int("confidence2", pred.Secondary.Confidence))
	return nil
}

// resolve resolves both guesses concurrently. The secondary result is only
// kept once the primary has succeeded; its failure is never returned.
func (s *Service) resolve(ctx context.Context, p *pipeline) error {
	start := s.now()
	defer func() { s.metrics.RecordStage(metrics.StageResolve, s.now().Sub(start)) }()

	var (
		primary, secondary *disease.Resolution
		secondaryErr       error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primary, err = s.resolver.Resolve(gctx, p.crop, p.prediction.Primary.DiseaseName)
		return err
	})
	g.Go(func() error {
		secondary, secondaryErr = s.resolver.Resolve(gctx, p.crop, p.prediction.Secondary.DiseaseName)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.RecordResolution("primary", "", err)
		return s.primaryError(err)
	}
	s.metrics.RecordResolution("primary", string(primary.Source), nil)
	p.primary = primary

	p.enter(StateResolvingSecondary)
	if secondaryErr != nil {
		s.metrics.RecordResolution("secondary", "", secondaryErr)
		p.log.Info("secondary guess not resolved",
			logger.String("name", p.prediction.Secondary.DiseaseName),
			logger.Error(secondaryErr))
		return nil
	}
	s.metrics.RecordResolution("secondary", string(secondary.Source), nil)
	p.secondary = secondary
	return nil
}

// primaryError applies the legacy mapping of upstream failures.
func (s *Service) primaryError(err error) error {
	if s.legacyNotFound && errors.Is(err, errors.ErrUpstreamUnavailable) {
		return fmt.Errorf("%w: %w", errors.ErrDiseaseNotFound, err)
	}
	return err
}

// buildRecord keeps both confidences even when the secondary guess did not
// resolve; only the secondary identity fields stay nil.
func (s *Service) buildRecord(p *pipeline) *datastore.DiagnosisRecord {
	c1 := p.prediction.Primary.Confidence
	c2 := p.prediction.Secondary.Confidence
	record := &datastore.DiagnosisRecord{
		UserID:         p.req.UserID,
		ImageURL:       p.object.URL,
		ImageKey:       p.object.Key,
		Confidence1:    &c1,
		Confidence2:    &c2,
		ReferenceCode1: p.primary.ReferenceCode,
		DiseaseID1:     p.primary.DiseaseID,
		CreatedAt:      s.now(),
	}
	if p.secondary != nil {
		code := p.secondary.ReferenceCode
		record.ReferenceCode2 = &code
		record.DiseaseID2 = p.secondary.DiseaseID
	}
	return record
}

// reject ends a pipeline that has nothing to roll back.
func (s *Service) reject(p *pipeline, err error) error {
	if p.failedIn == "" {
		p.failedIn = p.state
	}
	p.enter(StateRejected)
	p.log.Info("diagnosis rejected",
		logger.String("failed_state", string(p.failedIn)),
		logger.Error(err))
	return err
}

// compensate deletes the uploaded image and returns cause. The delete runs
// detached from ctx so a disconnected client still gets its upload removed.
// A failed delete is logged and reported but never replaces cause.
func (s *Service) compensate(ctx context.Context, p *pipeline, cause error) error {
	p.failedIn = p.state
	p.enter(StateCompensating)

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	start := s.now()
	delErr := s.storage.Delete(delCtx, p.object.Key)
	s.metrics.RecordStage(metrics.StageCompensate, s.now().Sub(start))
	s.metrics.RecordCompensation(metrics.Outcome(cause), delErr)

	if delErr != nil {
		_ = errors.New(delErr).
			Component("diagnosis").
			Category(errors.CategoryStorage).
			Priority("high").
			Context("operation", "compensate_upload").
			Context("image_key", p.object.Key).
			Context("failed_state", string(p.failedIn)).
			Build()
		p.log.Error("failed to delete uploaded image, object is orphaned",
			logger.String("failed_state", string(p.failedIn)),
			logger.Error(delErr))
	} else {
		p.log.Info("uploaded image deleted after failure",
			logger.String("failed_state", string(p.failedIn)))
	}

	return s.reject(p, cause)
}

func (s *Service) notify(p *pipeline, record *datastore.DiagnosisRecord) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(notification.NewDiagnosisNotification(notification.DiagnosisEvent{
		UserID:     record.UserID,
		RecordID:   record.ID,
		Crop:       p.crop,
		Disease:    p.primary.Descriptor.Name,
		Confidence: p.prediction.Primary.Confidence,
		ImageURL:   record.ImageURL,
		Source:     string(p.primary.Source),
	}))
}

func invalidInput(msg string) error {
	return errors.New(fmt.Errorf("%w: %s", errors.ErrInvalidInput, msg)).
		Component("diagnosis").
		Category(errors.CategoryValidation).
		Build()
}
