package content

import "fmt"

// Stages reported by ContentGenerationError.
const (
	StageText  = "text"
	StageImage = "image"
)

// ContentGenerationError reports a failed or unusable response from the
// generative-content provider.
type ContentGenerationError struct {
	Stage  string // "text" or "image"
	Reason string
	Err    error
}

func (e *ContentGenerationError) Error() string {
	msg := fmt.Sprintf("content generation (%s) failed: %s", e.Stage, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContentGenerationError) Unwrap() error {
	return e.Err
}

func textError(reason string, err error) error {
	return &ContentGenerationError{Stage: StageText, Reason: reason, Err: err}
}

func imageError(reason string, err error) error {
	return &ContentGenerationError{Stage: StageImage, Reason: reason, Err: err}
}
