package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MateoLopez004/Gobackup/types"
)

func ok(name string, size int64) types.FileDescriptor {
	return types.FileDescriptor{Name: name, Size: size, Outcome: types.UploadSuccess}
}

func TestBind_CreateOrAttach(t *testing.T) {
	c := New()
	gen := c.Generation()

	res, err := c.Bind(gen, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.BindCreated, res.Kind)
	assert.Equal(t, "sess-1", res.SessionID)

	res, err = c.Bind(gen, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.BindAttached, res.Kind)
	assert.Equal(t, "sess-1", c.ID())
}

func TestBind_DifferentIDIsProtocolViolation(t *testing.T) {
	c := New()
	gen := c.Generation()
	_, err := c.Bind(gen, "sess-1")
	require.NoError(t, err)

	_, err = c.Bind(gen, "sess-2")
	require.ErrorIs(t, err, ErrSessionMismatch)
	assert.Equal(t, "sess-1", c.ID(), "bound id must not change")
}

func TestBind_EmptyID(t *testing.T) {
	c := New()
	_, err := c.Bind(c.Generation(), "")
	require.ErrorIs(t, err, ErrEmptySessionID)
	assert.Empty(t, c.ID())
}

func TestReset_ClearsEverything(t *testing.T) {
	statuses := []types.SessionStatus{
		types.StatusUploading,
		types.StatusUploadsReady,
		types.StatusTriggering,
		types.StatusPolling,
		types.StatusCompleted,
		types.StatusDownloading,
		types.StatusDone,
		types.StatusTimedOut,
		types.StatusFailed,
	}
	for _, st := range statuses {
		t.Run(string(st), func(t *testing.T) {
			c := New()
			gen := c.Generation()
			_, err := c.Bind(gen, "sess-1")
			require.NoError(t, err)
			require.NoError(t, c.AppendFile(gen, ok("a.txt", 100)))
			require.True(t, c.MarkDownloadTriggered(gen))
			require.NoError(t, c.Transition(gen, st))

			newGen := c.Reset()

			v := c.View()
			assert.Equal(t, gen+1, newGen)
			assert.Equal(t, types.StatusIdle, v.Status)
			assert.Empty(t, v.ID)
			assert.Empty(t, v.Manifest)
			assert.False(t, v.DownloadTriggered)
			assert.Equal(t, newGen, v.Generation)
		})
	}
}

func TestStaleGenerationRejected(t *testing.T) {
	c := New()
	old := c.Generation()
	c.Reset()

	_, err := c.Bind(old, "late")
	assert.ErrorIs(t, err, ErrStale)
	assert.ErrorIs(t, c.AppendFile(old, ok("late.txt", 1)), ErrStale)
	assert.ErrorIs(t, c.Transition(old, types.StatusPolling), ErrStale)
	assert.False(t, c.MarkDownloadTriggered(old))

	v := c.View()
	assert.Empty(t, v.ID)
	assert.Empty(t, v.Manifest)
	assert.Equal(t, types.StatusIdle, v.Status)
}

func TestTransition_FromGuard(t *testing.T) {
	c := New()
	gen := c.Generation()

	err := c.Transition(gen, types.StatusPolling, types.StatusTriggering)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, types.StatusIdle, c.Status())

	require.NoError(t, c.Transition(gen, types.StatusUploading, types.StatusIdle, types.StatusUploadsReady))
	assert.Equal(t, types.StatusUploading, c.Status())
}

func TestMarkDownloadTriggered_OnlyOnce(t *testing.T) {
	c := New()
	gen := c.Generation()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.MarkDownloadTriggered(gen) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, c.DownloadTriggered())
}

func TestView_IsCopy(t *testing.T) {
	c := New()
	gen := c.Generation()
	require.NoError(t, c.AppendFile(gen, ok("a.txt", 1)))

	v := c.View()
	v.Manifest[0].Name = "mutated"

	assert.Equal(t, "a.txt", c.View().Manifest[0].Name)
}
