// Package ideas owns the rotating list of post ideas and the persisted
// cursor that remembers which idea was used last.
package ideas

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyLedger is returned by Next when no ideas are configured.
var ErrEmptyLedger = errors.New("no ideas have been configured")

// MalformedStateError reports a rotation file that exists but cannot be
// used, most commonly because the "ideas" array is missing.
type MalformedStateError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedStateError) Error() string {
	msg := fmt.Sprintf("malformed idea state %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedStateError) Unwrap() error {
	return e.Err
}

// Idea is a titled creative prompt used to seed a post.
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts "desc" as a shorthand for "description" so
// hand-edited idea files stay forgiving.
func (i *Idea) UnmarshalJSON(data []byte) error {
	type Alias Idea

	aux := &struct {
		Desc string `json:"desc"`
		*Alias
	}{
		Alias: (*Alias)(i),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.Desc != "" && i.Description == "" {
		i.Description = aux.Desc
	}

	return nil
}

// PromptFragment renders the idea the way it is embedded in generation prompts.
func (i Idea) PromptFragment() string {
	return fmt.Sprintf("Title: %s\nDescription: %s", i.Title, i.Description)
}

// RotationState is the durable form of the ledger.
type RotationState struct {
	Ideas     []Idea `json:"ideas"`
	LastIndex int    `json:"last_index"`
}

// nextIndex returns the index following LastIndex, wrapping around. It
// tolerates hand-edited cursors outside [-1, len).
func (s RotationState) nextIndex() int {
	n := len(s.Ideas)
	idx := (s.LastIndex + 1) % n
	if idx < 0 {
		idx += n
	}
	return idx
}
