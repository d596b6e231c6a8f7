package httpapi

// APIError is the tagged handler error every route returns instead of a
// raw error, grounded on ErrorHttp's per-variant (status, message) pair.
// MergeNotAllowed is a distinct tag (not a flag on NotImplemented) so the
// 501→205 remap can never leak onto any other handler's NotImplemented.
type APIError struct {
	Tag     string
	Message string
}

func (e *APIError) Error() string { return e.Tag + ": " + e.Message }

const (
	tagNotFound            = "NotFound"
	tagBadRequest          = "BadRequest"
	tagValidationFailed    = "ValidationFailed"
	tagForbidden           = "Forbidden"
	tagConflict            = "Conflict"
	tagInternalServerError = "InternalServerError"
	tagNotImplemented      = "NotImplemented"
	tagMergeNotAllowed     = "MergeNotAllowed"
)

func NotFound(msg string) *APIError         { return &APIError{tagNotFound, msg} }
func BadRequest(msg string) *APIError       { return &APIError{tagBadRequest, msg} }
func ValidationFailed(msg string) *APIError { return &APIError{tagValidationFailed, msg} }
func Forbidden(msg string) *APIError        { return &APIError{tagForbidden, msg} }
func Conflict(msg string) *APIError         { return &APIError{tagConflict, msg} }
func Internal(msg string) *APIError         { return &APIError{tagInternalServerError, msg} }
func NotImplemented(msg string) *APIError   { return &APIError{tagNotImplemented, msg} }

// MergeNotAllowed is the non-standard 205 used only by the PR merge
// endpoint when the merge cannot proceed (e.g. not fast-forwardable).
func MergeNotAllowed(msg string) *APIError { return &APIError{tagMergeNotAllowed, msg} }

// StatusFor maps an APIError's tag to its wire status, per spec.md §7 and
// the Open Question decision confining 205 to MergeNotAllowed alone.
func StatusFor(e *APIError) Status {
	switch e.Tag {
	case tagNotFound:
		return StatusNotFound
	case tagBadRequest:
		return StatusBadRequest
	case tagValidationFailed:
		return StatusValidationFailed
	case tagForbidden:
		return StatusForbidden
	case tagConflict:
		return StatusConflict
	case tagNotImplemented:
		return StatusNotImplementedStatus
	case tagMergeNotAllowed:
		return StatusMergeNotAllowed
	default:
		return StatusInternalServerError
	}
}
