package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	"advisor-marketplace/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendDrainOrder(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()
	ctx := context.Background()

	for _, content := range []string{"m1", "m2", "m3"} {
		err := s.Append(ctx, "sess-1", Message{SenderID: 7, Content: content, SentAt: time.Now()})
		require.NoError(t, err)
	}

	drained, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, drained, 3)
	assert.Equal(t, "m1", drained[0].Content)
	assert.Equal(t, "m2", drained[1].Content)
	assert.Equal(t, "m3", drained[2].Content)

	// Buffer is empty after drain.
	again, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-a", Message{Content: "a"}))
	require.NoError(t, s.Append(ctx, "sess-b", Message{Content: "b"}))

	a, err := s.Drain(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, "a", a[0].Content)

	b, err := s.Drain(ctx, "sess-b")
	require.NoError(t, err)
	require.Len(t, b, 1)
	assert.Equal(t, "b", b[0].Content)
}

func TestMemoryStoreTTLEviction(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-1", Message{Content: "stale"}))

	time.Sleep(50 * time.Millisecond)

	drained, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, drained)
}

func TestMemoryStoreDiscard(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Stop()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-1", Message{Content: "gone"}))
	require.NoError(t, s.Discard(ctx, "sess-1"))

	drained, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, drained)
}

// failingStore errors on every operation, standing in for an unreachable
// redis backing.
type failingStore struct{}

func (failingStore) Append(ctx context.Context, sessionID string, msg Message) error {
	return errors.New("connection refused")
}

func (failingStore) Drain(ctx context.Context, sessionID string) ([]Message, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Discard(ctx context.Context, sessionID string) error {
	return errors.New("connection refused")
}

func TestFailoverDegradesToFallback(t *testing.T) {
	fallback := NewMemoryStore(time.Minute)
	defer fallback.Stop()

	log := logger.New(logger.Config{Level: "error"})
	s := NewFailoverStore(failingStore{}, fallback, log)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-1", Message{Content: "survives"}))

	drained, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.Equal(t, "survives", drained[0].Content)
}

func TestFailoverDiscardClearsFallback(t *testing.T) {
	fallback := NewMemoryStore(time.Minute)
	defer fallback.Stop()

	log := logger.New(logger.Config{Level: "error"})
	s := NewFailoverStore(failingStore{}, fallback, log)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-1", Message{Content: "dropped"}))
	require.NoError(t, s.Discard(ctx, "sess-1"))

	drained, err := s.Drain(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, drained)
}
