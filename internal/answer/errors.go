package answer

import "errors"

// Response-shape conditions, each distinguished so callers and logs can tell
// a refusal from truncation from a malformed payload.
var (
	ErrEmptyResponse   = errors.New("model returned empty or malformed response")
	ErrRefused         = errors.New("model refused the request")
	ErrTruncated       = errors.New("model response truncated at token limit")
	ErrContentFiltered = errors.New("model response blocked by content filter")
)
