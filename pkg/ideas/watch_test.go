package ideas

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReload(t *testing.T) {
	path := writeState(t, `{"ideas":[{"title":"A"}],"last_index":-1}`)
	ledger, err := Load(path)
	require.NoError(t, err)

	changed, err := ledger.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(path, []byte(`{"ideas":[{"title":"A"},{"title":"B"}],"last_index":0}`), 0644))
	changed, err = ledger.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, ledger.Ideas(), 2)

	idea, err := ledger.Next()
	require.NoError(t, err)
	assert.Equal(t, "B", idea.Title)
}

func TestReload_MalformedKeepsState(t *testing.T) {
	path := writeState(t, `{"ideas":[{"title":"A"},{"title":"B"}],"last_index":0}`)
	ledger, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"ideas": [`), 0644))
	_, err = ledger.Reload()
	var malformed *MalformedStateError
	require.ErrorAs(t, err, &malformed)

	assert.Len(t, ledger.Ideas(), 2)
	assert.Equal(t, 0, ledger.LastIndex())
}

func TestWatch_PicksUpEdits(t *testing.T) {
	path := writeState(t, `{"ideas":[{"title":"A"}],"last_index":-1}`)
	ledger, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, ledger, nil) }()

	// Keep rewriting until the watcher is registered and sees a write.
	edited := []byte(`{"ideas":[{"title":"A"},{"title":"B"},{"title":"C"}],"last_index":-1}`)
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(path, edited, 0644); err != nil {
			return false
		}
		return len(ledger.Ideas()) == 3
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
