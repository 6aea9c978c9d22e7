package gate

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"advisor-marketplace/backend/internal/cursor"
	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/service"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func (s *stubSessions) Create(ctx context.Context, session *models.Session) error { return nil }

func (s *stubSessions) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessions) GetByRequestKey(ctx context.Context, key string) (*models.Session, error) {
	return nil, apperrors.NotFound("session not found")
}

func (s *stubSessions) FindOpenByUser(ctx context.Context, userID uint) (*models.Session, error) {
	return nil, nil
}

func (s *stubSessions) Transition(ctx context.Context, id string, from, to models.SessionStatus, fields map[string]interface{}) (*models.Session, error) {
	return nil, apperrors.NotFound("session not found")
}

func (s *stubSessions) SetArchiveID(ctx context.Context, id, archiveID string) error { return nil }

func (s *stubSessions) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	return nil, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []service.Notification
}

func (n *stubNotifier) Notify(ctx context.Context, userID uint, notification service.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *stubNotifier) kinds() []service.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []service.NotificationKind
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type gateFixture struct {
	gate     *Gate
	sessions *stubSessions
	cursors  *cursor.MemoryStore
	notifier *stubNotifier
	expired  []string
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		sessions: &stubSessions{sessions: make(map[string]*models.Session)},
		cursors:  cursor.NewMemoryStore(),
		notifier: &stubNotifier{},
	}
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	f.gate = New(f.sessions, f.cursors, f.notifier, func(ctx context.Context, sessionID string) error {
		f.expired = append(f.expired, sessionID)
		return nil
	}, log)
	return f
}

func (f *gateFixture) addSession(s *models.Session) {
	f.sessions.mu.Lock()
	defer f.sessions.mu.Unlock()
	f.sessions.sessions[s.ID] = s
}

func TestGatePassesUserWithoutCursor(t *testing.T) {
	f := newGateFixture(t)

	assert.True(t, f.gate.Check(context.Background(), 1))
	assert.Empty(t, f.notifier.kinds())
}

func TestGatePassesConsistentCursor(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusActive})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseChatting, SessionID: "s1"}))
	require.NoError(t, f.cursors.Set(ctx, 2, cursor.State{Phase: cursor.PhaseChatting, SessionID: "s1"}))

	assert.True(t, f.gate.Check(ctx, 1))
	assert.True(t, f.gate.Check(ctx, 2))
	assert.Empty(t, f.notifier.kinds())
}

func TestGateClearsCursorForMissingSession(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseChatting, SessionID: "gone"}))

	assert.False(t, f.gate.Check(ctx, 1))

	state, err := f.cursors.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, []service.NotificationKind{service.NotifySessionMissing}, f.notifier.kinds())
}

func TestGateRepairsStalePhase(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	// Session moved on to active while the client still believes it is waiting.
	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusActive})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseWaiting, SessionID: "s1"}))

	assert.False(t, f.gate.Check(ctx, 1))

	state, err := f.cursors.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, cursor.PhaseChatting, state.Phase)
	assert.Equal(t, []service.NotificationKind{service.NotifyCursorRepaired}, f.notifier.kinds())

	// Repaired cursor now passes.
	assert.True(t, f.gate.Check(ctx, 1))
}

func TestGateMovesClientToRatingOnCompleted(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusCompleted})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseChatting, SessionID: "s1"}))
	require.NoError(t, f.cursors.Set(ctx, 2, cursor.State{Phase: cursor.PhaseChatting, SessionID: "s1"}))

	assert.False(t, f.gate.Check(ctx, 1))
	state, err := f.cursors.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, cursor.PhaseRating, state.Phase)

	// The advisor has no business lingering on a completed session.
	assert.False(t, f.gate.Check(ctx, 2))
	advState, err := f.cursors.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, advState)
}

func TestGateClearsCursorOnTerminalSession(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusDeclined})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseWaiting, SessionID: "s1"}))

	assert.False(t, f.gate.Check(ctx, 1))

	state, err := f.cursors.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, []service.NotificationKind{service.NotifyCursorRepaired}, f.notifier.kinds())
}

func TestGateExpiresOverduePendingInline(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusPending, ExpiresAt: &past})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseWaiting, SessionID: "s1"}))

	assert.False(t, f.gate.Check(ctx, 1))
	assert.Equal(t, []string{"s1"}, f.expired)
	// No repair notice; the expiry path owns the user-facing message.
	assert.Empty(t, f.notifier.kinds())
}

func TestGatePassesWaitingClientOnFreshPending(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	future := time.Now().Add(10 * time.Minute)
	f.addSession(&models.Session{ID: "s1", ClientID: 1, AdvisorID: 2, Status: models.StatusPending, ExpiresAt: &future})
	require.NoError(t, f.cursors.Set(ctx, 1, cursor.State{Phase: cursor.PhaseWaiting, SessionID: "s1"}))

	assert.True(t, f.gate.Check(ctx, 1))
	assert.Empty(t, f.expired)
}
