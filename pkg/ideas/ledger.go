package ideas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/soypete/pedropost/pkg/fileio"
)

// Ledger rotates through a fixed list of ideas and persists the cursor
// after every selection. It is the only writer of its state file.
type Ledger struct {
	mu    sync.Mutex
	path  string
	state RotationState

	// extra holds unknown top-level keys so hand-added fields survive a save.
	extra map[string]json.RawMessage
}

// Load reads the rotation state at path. A missing file is created with an
// empty idea list and a cursor of -1.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:  path,
		state: RotationState{Ideas: []Idea{}, LastIndex: -1},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read idea state: %w", err)
		}
		if err := l.save(l.state); err != nil {
			return nil, err
		}
		return l, nil
	}

	if err := l.decode(data); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) decode(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &MalformedStateError{Path: l.path, Reason: "expected a JSON object", Err: err}
	}

	ideasRaw, ok := raw["ideas"]
	if !ok {
		return &MalformedStateError{Path: l.path, Reason: "must contain an 'ideas' array with idea objects"}
	}

	var list []Idea
	if err := json.Unmarshal(ideasRaw, &list); err != nil {
		return &MalformedStateError{Path: l.path, Reason: "'ideas' must be an array of {title, description} objects", Err: err}
	}
	if list == nil {
		list = []Idea{}
	}

	lastIndex := -1
	if idxRaw, ok := raw["last_index"]; ok && string(idxRaw) != "null" {
		if err := json.Unmarshal(idxRaw, &lastIndex); err != nil {
			return &MalformedStateError{Path: l.path, Reason: "'last_index' must be an integer", Err: err}
		}
	}

	delete(raw, "ideas")
	delete(raw, "last_index")
	if len(raw) > 0 {
		l.extra = raw
	}

	l.state = RotationState{Ideas: list, LastIndex: lastIndex}
	return nil
}

// Reload re-reads the state file so ideas edited while the bot runs are
// picked up. A malformed file leaves the current state untouched. It
// reports whether the ideas or the cursor changed.
func (l *Ledger) Reload() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("failed to read idea state: %w", err)
	}

	fresh := &Ledger{path: l.path}
	if err := fresh.decode(data); err != nil {
		return false, err
	}

	changed := fresh.state.LastIndex != l.state.LastIndex || !slices.Equal(fresh.state.Ideas, l.state.Ideas)
	l.state = fresh.state
	l.extra = fresh.extra
	return changed, nil
}

// Next returns the idea after the cursor and durably advances the cursor
// to it. The cursor is only advanced in memory once the write succeeded.
func (l *Ledger) Next() (Idea, error) {
	idea, _, err := l.NextIndexed()
	return idea, err
}

// NextIndexed is Next that also reports the index it selected.
func (l *Ledger) NextIndexed() (Idea, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.state.Ideas) == 0 {
		return Idea{}, -1, fmt.Errorf("%w: add entries to %s", ErrEmptyLedger, l.absPath())
	}

	idx := l.state.nextIndex()
	next := RotationState{Ideas: l.state.Ideas, LastIndex: idx}
	if err := l.save(next); err != nil {
		return Idea{}, -1, err
	}
	l.state = next

	return l.state.Ideas[idx], idx, nil
}

// Peek reports the idea Next would return, and its index, without
// advancing the cursor.
func (l *Ledger) Peek() (Idea, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.state.Ideas) == 0 {
		return Idea{}, -1, fmt.Errorf("%w: add entries to %s", ErrEmptyLedger, l.absPath())
	}
	idx := l.state.nextIndex()
	return l.state.Ideas[idx], idx, nil
}

// Ideas returns a copy of the configured ideas.
func (l *Ledger) Ideas() []Idea {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Idea(nil), l.state.Ideas...)
}

// LastIndex returns the index of the most recently selected idea, or -1.
func (l *Ledger) LastIndex() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LastIndex
}

// Path returns the location of the durable state.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) save(state RotationState) error {
	doc := make(map[string]any, len(l.extra)+2)
	for k, v := range l.extra {
		doc[k] = v
	}
	doc["ideas"] = state.Ideas
	doc["last_index"] = state.LastIndex

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to marshal idea state: %w", err)
	}

	if err := fileio.WriteFileAtomic(l.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save idea state: %w", err)
	}
	return nil
}

func (l *Ledger) absPath() string {
	if abs, err := filepath.Abs(l.path); err == nil {
		return abs
	}
	return l.path
}
