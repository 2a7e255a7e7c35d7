package social

import "fmt"

// InvalidInputError is returned before any network call when the post
// cannot be published as given.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Phases reported by PublishError.
const (
	PhaseUpload = "upload"
	PhaseCreate = "create"
)

// PublishError reports a failure talking to the social provider.
type PublishError struct {
	Phase string // "upload" or "create"
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed during %s: %v", e.Phase, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response from the X API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	switch {
	case e.Detail != "":
		return fmt.Sprintf("x api returned %d: %s", e.StatusCode, e.Detail)
	case e.Title != "":
		return fmt.Sprintf("x api returned %d: %s", e.StatusCode, e.Title)
	default:
		return fmt.Sprintf("x api returned %d: %s", e.StatusCode, e.Body)
	}
}
