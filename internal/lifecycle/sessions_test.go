package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letssora/internal/domain"
	"letssora/internal/normalize"
	"letssora/internal/providers/image"
)

func TestSessionsScopedByOwner(t *testing.T) {
	images := &stubImages{res: &image.Result{GenerationResult: domain.GenerationResult{MediaURL: "https://example/cat.png"}}}
	sessions := NewSessions(Deps{Images: images, Videos: &stubVideos{}}, Options{})

	alice, err := sessions.GetOrCreate("alice", "tab-1")
	require.NoError(t, err)
	again, err := sessions.GetOrCreate("alice", " tab-1 ")
	require.NoError(t, err)
	assert.Same(t, alice, again)
	assert.Equal(t, "alice", alice.Owner())

	bob, err := sessions.GetOrCreate("bob", "tab-1")
	require.NoError(t, err)
	assert.NotSame(t, alice, bob)

	_, ok := sessions.Get("carol", "tab-1")
	assert.False(t, ok)

	snap, err := alice.Submit(context.Background(), domain.GenerationRequest{Mode: domain.ModeImage, Prompt: "a cat"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, StateIdle, bob.Snapshot().State)

	assert.True(t, sessions.Remove("alice", "tab-1"))
	assert.False(t, sessions.Remove("alice", "tab-1"))
	assert.Equal(t, StateIdle, alice.Snapshot().State)
	assert.Equal(t, 1, sessions.Len())
}

type testClock struct{ nanos atomic.Int64 }

func newTestClock() *testClock {
	c := &testClock{}
	c.nanos.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *testClock) Now() time.Time          { return time.Unix(0, c.nanos.Load()).UTC() }
func (c *testClock) Advance(d time.Duration) { c.nanos.Add(int64(d)) }

func neverFires(time.Duration) <-chan time.Time { return make(chan time.Time) }

func pollingVideos() *stubVideos {
	return &stubVideos{submitDoc: normalize.Document{"id": "video_1", "status": "queued"}}
}

func TestSessionsEvictSettledSessionsAfterTTL(t *testing.T) {
	clock := newTestClock()
	images := &stubImages{res: &image.Result{GenerationResult: domain.GenerationResult{MediaURL: "https://example/cat.png"}}}
	sessions := NewSessions(Deps{Images: images, Videos: pollingVideos()}, Options{
		Now:        clock.Now,
		After:      neverFires,
		SessionTTL: time.Minute,
	})
	ctx := context.Background()

	done, err := sessions.GetOrCreate("alice", "done")
	require.NoError(t, err)
	snap, err := done.Submit(ctx, domain.GenerationRequest{Mode: domain.ModeImage, Prompt: "a cat"})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, snap.State)

	running, err := sessions.GetOrCreate("alice", "running")
	require.NoError(t, err)
	snap, err = running.Submit(ctx, domain.GenerationRequest{Mode: domain.ModeVideo, Prompt: "waves"})
	require.NoError(t, err)
	require.Equal(t, StatePolling, snap.State)
	defer running.Reset()

	clock.Advance(30 * time.Second)
	_, ok := sessions.Get("alice", "done")
	assert.True(t, ok, "session evicted before its TTL")

	clock.Advance(time.Minute)
	_, ok = sessions.Get("alice", "done")
	assert.False(t, ok)
	assert.Nil(t, done.Snapshot().Result, "evicted session must drop its result")

	got, ok := sessions.Get("alice", "running")
	require.True(t, ok, "running session must survive the TTL")
	assert.Same(t, running, got)

	idle, err := sessions.GetOrCreate("alice", "idle")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	_, err = sessions.GetOrCreate("bob", "tab")
	require.NoError(t, err)
	_, ok = sessions.Get("alice", "idle")
	assert.False(t, ok)
	assert.Equal(t, StateIdle, idle.Snapshot().State)
	assert.Equal(t, 2, sessions.Len())
}

func TestSessionsCapPerOwner(t *testing.T) {
	clock := newTestClock()
	sessions := NewSessions(Deps{Images: &stubImages{}, Videos: pollingVideos()}, Options{
		Now:              clock.Now,
		After:            neverFires,
		MaxOwnerSessions: 2,
	})
	ctx := context.Background()

	first, err := sessions.GetOrCreate("alice", "a")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := sessions.GetOrCreate("alice", "b")
	require.NoError(t, err)
	clock.Advance(time.Second)

	third, err := sessions.GetOrCreate("alice", "c")
	require.NoError(t, err)
	_, ok := sessions.Get("alice", "a")
	assert.False(t, ok, "oldest idle session should make room")
	assert.Equal(t, StateIdle, first.Snapshot().State)

	for _, c := range []*Controller{second, third} {
		snap, err := c.Submit(ctx, domain.GenerationRequest{Mode: domain.ModeVideo, Prompt: "waves"})
		require.NoError(t, err)
		require.Equal(t, StatePolling, snap.State)
		defer c.Reset()
	}

	_, err = sessions.GetOrCreate("alice", "d")
	assert.ErrorIs(t, err, domain.ErrTooManySessions)

	same, err := sessions.GetOrCreate("alice", "b")
	require.NoError(t, err)
	assert.Same(t, second, same)

	_, err = sessions.GetOrCreate("bob", "a")
	require.NoError(t, err)
	assert.Equal(t, 3, sessions.Len())
}
