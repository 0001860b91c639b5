package errs

import (
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// FromOpenAI maps an OpenAI API error onto the taxonomy so retry policies
// can tell fatal from transient conditions. Non-API errors are treated as
// network-level unavailability.
func FromOpenAI(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
