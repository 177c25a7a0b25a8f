package errors

import "fmt"

// Domain error kinds. Callers wrap them with %w (directly or through Newf)
// and match them with Is; the HTTP layer maps each kind to a status code.
var (
	// ErrInvalidCrop: crop is not in the allow-list or the reference
	// service does not recognise it.
	ErrInvalidCrop = NewStd("invalid crop")
	// ErrDiseaseNotFound: a prediction resolves in neither the local store
	// nor the reference service.
	ErrDiseaseNotFound = NewStd("disease not found")
	// ErrUpstreamUnavailable: transport or parse failure talking to the
	// reference service.
	ErrUpstreamUnavailable = NewStd("reference service unavailable")
	// ErrCorruptRecord: a persisted diagnosis has no primary identity.
	ErrCorruptRecord = NewStd("corrupt diagnosis record")
	ErrNotAuthorized = NewStd("not authorized")
	ErrNotFound      = NewStd("not found")
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrUploadFailed  = NewStd("image upload failed")
	// ErrClassifierFailed: the classifier call failed or returned fewer than
	// two guesses.
	ErrClassifierFailed = NewStd("classification failed")
	ErrInvalidInput     = NewStd("invalid input")
	// ErrUnrecognizedCrop is reported by the reference service client when a
	// crop-only search comes back empty. The resolver maps it to
	// ErrInvalidCrop.
	ErrUnrecognizedCrop = NewStd("crop not recognized by reference service")
)

var kindCategories = []struct {
	kind     error
	category ErrorCategory
}{
	{ErrInvalidCrop, CategoryValidation},
	{ErrInvalidInput, CategoryValidation},
	{ErrUnrecognizedCrop, CategoryValidation},
	{ErrDiseaseNotFound, CategoryNotFound},
	{ErrNotFound, CategoryNotFound},
	{ErrUpstreamUnavailable, CategoryNetwork},
	{ErrCorruptRecord, CategoryIntegrity},
	{ErrNotAuthorized, CategoryAuth},
	{ErrUploadFailed, CategoryStorage},
	{ErrClassifierFailed, CategoryClassification},
}

func kindCategory(err error) ErrorCategory {
	for _, kc := range kindCategories {
		if Is(err, kc.kind) {
			return kc.category
		}
	}
	return ""
}
