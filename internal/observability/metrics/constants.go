package metrics

import (
	"context"

	"github.com/nongbuhae/cropdoc/internal/errors"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Pipeline stages observed by StageDuration.
const (
	StageUpload     = "upload"
	StageClassify   = "classify"
	StageResolve    = "resolve"
	StagePersist    = "persist"
	StageCompensate = "compensate"
)

// Outcome label values for diagnoses and resolutions.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalidCrop  = "invalid_crop"
	OutcomeInvalidInput = "invalid_input"
	OutcomeUserNotFound = "user_not_found"
	OutcomeNotFound     = "disease_not_found"
	OutcomeUpstream     = "upstream_unavailable"
	OutcomeUpload       = "upload_failed"
	OutcomeClassifier   = "classifier_failed"
	OutcomeCorrupt      = "corrupt_record"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// Outcome maps err onto a bounded label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errors.ErrInvalidCrop), errors.Is(err, errors.ErrUnrecognizedCrop):
		return OutcomeInvalidCrop
	case errors.Is(err, errors.ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, errors.ErrUserNotFound):
		return OutcomeUserNotFound
	case errors.Is(err, errors.ErrDiseaseNotFound):
		return OutcomeNotFound
	case errors.Is(err, errors.ErrUpstreamUnavailable):
		return OutcomeUpstream
	case errors.Is(err, errors.ErrUploadFailed):
		return OutcomeUpload
	case errors.Is(err, errors.ErrClassifierFailed):
		return OutcomeClassifier
	case errors.Is(err, errors.ErrCorruptRecord):
		return OutcomeCorrupt
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
