package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"advisor-marketplace/backend/internal/buffer"
	"advisor-marketplace/backend/internal/cursor"
	"advisor-marketplace/backend/internal/models"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSessionStore mimics the gorm store's semantics in memory: unique
// request keys, one open session per client and per advisor, conditional
// transitions.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionStore) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if session.RequestKey != nil && s.RequestKey != nil && *s.RequestKey == *session.RequestKey {
			return apperrors.Conflict("duplicate request key")
		}
		if s.Status.Open() && (s.ClientID == session.ClientID || s.AdvisorID == session.AdvisorID) {
			return apperrors.Conflict("open session exists")
		}
	}

	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetByRequestKey(ctx context.Context, key string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.RequestKey != nil && *s.RequestKey == key {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("session not found")
}

func (f *fakeSessionStore) FindOpenByUser(ctx context.Context, userID uint) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.Status.Open() && (s.ClientID == userID || s.AdvisorID == userID) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionStore) Transition(ctx context.Context, id string, from, to models.SessionStatus, fields map[string]interface{}) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("session not found")
	}
	if s.Status != from {
		cp := *s
		return &cp, apperrors.StaleState("session is no longer " + string(from))
	}

	s.Status = to
	for k, v := range fields {
		switch k {
		case "expires_at":
			if v == nil {
				s.ExpiresAt = nil
			} else if t, ok := v.(time.Time); ok {
				s.ExpiresAt = &t
			}
		case "completed_at":
			if t, ok := v.(time.Time); ok {
				s.CompletedAt = &t
			}
		}
	}
	s.UpdatedAt = time.Now()

	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) SetArchiveID(ctx context.Context, id, archiveID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok {
		return apperrors.NotFound("session not found")
	}
	s.ArchiveID = &archiveID
	return nil
}

func (f *fakeSessionStore) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for id, s := range f.sessions {
		if s.Status == models.StatusPending && s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
			s.Status = models.StatusExpired
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   uint
	messages []models.Message
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	message.ID = f.nextID
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeMessageRepo) CreateInOrder(ctx context.Context, messages []models.Message) error {
	for i := range messages {
		if err := f.Create(ctx, &messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMessageRepo) GetBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Message
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) GetBySessionPaginated(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	all, _ := f.GetBySession(ctx, sessionID)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type fakeReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*models.Review
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{reviews: make(map[string]*models.Review)}
}

func (f *fakeReviewRepo) Create(ctx context.Context, review *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.reviews[review.SessionID]; ok {
		return apperrors.AlreadyReviewed("session has already been rated")
	}
	cp := *review
	f.reviews[review.SessionID] = &cp
	return nil
}

func (f *fakeReviewRepo) GetBySession(ctx context.Context, sessionID string) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[sessionID]
	if !ok {
		return nil, apperrors.NotFound("review not found")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReviewRepo) RatingsByAdvisor(ctx context.Context, advisorID uint) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ratings []int
	for _, r := range f.reviews {
		if r.AdvisorID == advisorID {
			ratings = append(ratings, r.Rating)
		}
	}
	return ratings, nil
}

type fakeAdvisorRepo struct {
	mu       sync.Mutex
	profiles map[uint]*models.AdvisorProfile
}

func newFakeAdvisorRepo(ids ...uint) *fakeAdvisorRepo {
	f := &fakeAdvisorRepo{profiles: make(map[uint]*models.AdvisorProfile)}
	for _, id := range ids {
		f.profiles[id] = &models.AdvisorProfile{UserID: id}
	}
	return f
}

func (f *fakeAdvisorRepo) GetProfile(ctx context.Context, userID uint) (*models.AdvisorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperrors.NotFound("advisor not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeAdvisorRepo) ListProfiles(ctx context.Context, limit, offset int) ([]models.AdvisorProfile, error) {
	return nil, nil
}

func (f *fakeAdvisorRepo) Upsert(ctx context.Context, profile *models.AdvisorProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *profile
	f.profiles[profile.UserID] = &cp
	return nil
}

func (f *fakeAdvisorRepo) UpdateProfile(ctx context.Context, userID uint, fields map[string]interface{}) error {
	return nil
}

func (f *fakeAdvisorRepo) UpdateAggregate(ctx context.Context, userID uint, rating float64, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.profiles[userID]
	if !ok {
		return apperrors.NotFound("advisor not found")
	}
	p.Rating = rating
	p.ReviewCount = count
	return nil
}

func (f *fakeAdvisorRepo) TouchActivity(ctx context.Context, userID uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.profiles[userID]; ok {
		p.LastActiveAt = at
	}
	return nil
}

// recordNotifier captures fired notifications per user.
type recordNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	UserID uint
	N      Notification
}

func (r *recordNotifier) Notify(ctx context.Context, userID uint, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{UserID: userID, N: n})
}

func (r *recordNotifier) byKind(kind NotificationKind) []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentNotification
	for _, s := range r.sent {
		if s.N.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fakeArchiver struct {
	mu     sync.Mutex
	calls  int
	fail   bool
	lastID string
}

func (f *fakeArchiver) Archive(ctx context.Context, session *models.Session, messages []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.fail {
		return "", apperrors.StoreUnavailable("archive down")
	}
	f.lastID = "arch-" + session.ID
	return f.lastID, nil
}

type recordScheduler struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
}

func newRecordScheduler() *recordScheduler {
	return &recordScheduler{scheduled: make(map[string]time.Time)}
}

func (r *recordScheduler) Schedule(sessionID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[sessionID] = at
}

type staticDirectory map[uint]string

func (d staticDirectory) DisplayName(ctx context.Context, userID uint) string {
	return d[userID]
}

type fixture struct {
	svc       *ConsultationService
	sessions  *fakeSessionStore
	messages  *fakeMessageRepo
	reviews   *fakeReviewRepo
	advisors  *fakeAdvisorRepo
	buffer    *buffer.MemoryStore
	cursors   *cursor.MemoryStore
	notifier  *recordNotifier
	archiver  *fakeArchiver
	scheduler *recordScheduler
	clock     *time.Time
}

const (
	clientID  = uint(1)
	advisorID = uint(2)
	otherID   = uint(3)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	f := &fixture{
		sessions:  newFakeSessionStore(),
		messages:  &fakeMessageRepo{},
		reviews:   newFakeReviewRepo(),
		advisors:  newFakeAdvisorRepo(advisorID, otherID),
		buffer:    buffer.NewMemoryStore(time.Minute),
		cursors:   cursor.NewMemoryStore(),
		notifier:  &recordNotifier{},
		archiver:  &fakeArchiver{},
		scheduler: newRecordScheduler(),
		clock:     &clock,
	}
	t.Cleanup(f.buffer.Stop)

	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	f.svc = NewConsultationService(
		f.sessions, f.messages, f.reviews, f.advisors,
		f.buffer, f.cursors, f.notifier, f.archiver, f.scheduler,
		staticDirectory{clientID: "Ada", advisorID: "Ben", otherID: "Cy"},
		log,
		ConsultationConfig{PendingWindow: 15 * time.Minute, KeyBucket: time.Minute},
	)
	f.svc.now = func() time.Time { return *f.clock }

	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestRequestCreatesPendingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, session.Status)
	assert.Equal(t, clientID, session.ClientID)
	assert.Equal(t, advisorID, session.AdvisorID)
	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, f.clock.Add(15*time.Minute), *session.ExpiresAt)

	// Timer armed for the deadline.
	at, ok := f.scheduler.scheduled[session.ID]
	require.True(t, ok)
	assert.Equal(t, *session.ExpiresAt, at)

	// Advisor notified, client cursor parked on waiting.
	reqs := f.notifier.byKind(NotifyNewRequest)
	require.Len(t, reqs, 1)
	assert.Equal(t, advisorID, reqs[0].UserID)
	assert.Equal(t, "Ada", reqs[0].N.PeerName)

	state, err := f.cursors.Get(ctx, clientID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, cursor.PhaseWaiting, state.Phase)
	assert.Equal(t, session.ID, state.SessionID)
}

func TestRequestIsIdempotentWithinBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.NoError(t, err)

	f.advance(5 * time.Second)
	second, err := f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.sessions.sessions, 1)
	// The replay does not re-notify the advisor.
	assert.Len(t, f.notifier.byKind(NotifyNewRequest), 1)
}

func TestRequestDuplicateInLaterBucketIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.NoError(t, err)

	// Past the key bucket the open session blocks a new request; the
	// replay path only collapses duplicates within the bucket.
	f.advance(2 * time.Minute)
	_, err = f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyInSession))
	assert.Len(t, f.sessions.sessions, 1)
}

func TestRequestRejectsClientWithOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, clientID, advisorID, "first")
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	_, err = f.svc.Request(ctx, clientID, otherID, "second")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyInSession))
}

func TestRequestRejectsBusyAdvisor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, clientID, advisorID, "first")
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	_, err = f.svc.Request(ctx, uint(9), advisorID, "second")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAdvisorBusy))
}

func TestRequestUnknownAdvisor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Request(context.Background(), clientID, uint(404), "hello")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestAcceptActivatesAndFlushesBufferInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "tax planning")
	require.NoError(t, err)

	// Three pre-accept messages, one minute apart.
	for _, content := range []string{"m1", "m2", "m3"} {
		f.advance(time.Minute)
		msg, buffered, err := f.svc.Send(ctx, session.ID, clientID, content, "")
		require.NoError(t, err)
		assert.True(t, buffered)
		assert.Nil(t, msg)
	}

	sentAt2 := *f.clock

	updated, err := f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.Nil(t, updated.ExpiresAt)

	history, err := f.messages.GetBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{history[0].Content, history[1].Content, history[2].Content})
	for _, m := range history {
		assert.Equal(t, clientID, m.SenderID)
	}
	// Original timestamps survive the flush.
	assert.Equal(t, sentAt2, history[2].SentAt)

	// Buffer is empty afterwards.
	remaining, err := f.buffer.Drain(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Both cursors parked on chatting.
	for _, uid := range []uint{clientID, advisorID} {
		state, err := f.cursors.Get(ctx, uid)
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, cursor.PhaseChatting, state.Phase)
	}

	accepted := f.notifier.byKind(NotifyAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, clientID, accepted[0].UserID)
}

func TestAcceptWrongAdvisor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, session.ID, otherID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestAcceptNonPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestSendActivePersistsAndNotifiesPeer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)

	msg, buffered, err := f.svc.Send(ctx, session.ID, advisorID, "hello there", "")
	require.NoError(t, err)
	assert.False(t, buffered)
	require.NotNil(t, msg)
	assert.NotZero(t, msg.ID)

	forwarded := f.notifier.byKind(NotifyMessage)
	require.Len(t, forwarded, 1)
	assert.Equal(t, clientID, forwarded[0].UserID)
	assert.Equal(t, "hello there", forwarded[0].N.Body)
}

func TestSendRejectsOutsiderAndTerminalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	_, _, err = f.svc.Send(ctx, session.ID, uint(99), "hi", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.svc.Decline(ctx, session.ID, advisorID)
	require.NoError(t, err)

	_, _, err = f.svc.Send(ctx, session.ID, clientID, "hi", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestDeclineDiscardsBuffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, buffered, err := f.svc.Send(ctx, session.ID, clientID, "buffered", "")
	require.NoError(t, err)
	require.True(t, buffered)

	updated, err := f.svc.Decline(ctx, session.ID, advisorID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeclined, updated.Status)

	// Buffer gone, nothing was persisted.
	drained, err := f.buffer.Drain(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, drained)
	history, _ := f.messages.GetBySession(ctx, session.ID)
	assert.Empty(t, history)

	declined := f.notifier.byKind(NotifyDeclined)
	require.Len(t, declined, 1)
	assert.Equal(t, clientID, declined[0].UserID)

	state, err := f.cursors.Get(ctx, clientID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCancelOnlyByClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, session.ID, advisorID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	updated, err := f.svc.Cancel(ctx, session.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)

	first, err := f.svc.Complete(ctx, session.ID, advisorID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, first.Status)
	require.NotNil(t, first.CompletedAt)

	second, err := f.svc.Complete(ctx, session.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, second.Status)

	// One completion, one archive call, one notification.
	assert.Equal(t, 1, f.archiver.calls)
	assert.Len(t, f.notifier.byKind(NotifyCompleted), 1)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ArchiveID)
	assert.Equal(t, "arch-"+session.ID, *stored.ArchiveID)

	// Client parked on rating, advisor cursor cleared.
	state, err := f.cursors.Get(ctx, clientID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, cursor.PhaseRating, state.Phase)

	advState, err := f.cursors.Get(ctx, advisorID)
	require.NoError(t, err)
	assert.Nil(t, advState)
}

func TestCompleteSurvivesArchiveFailure(t *testing.T) {
	f := newFixture(t)
	f.archiver.fail = true
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)

	updated, err := f.svc.Complete(ctx, session.ID, clientID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ArchiveID)
}

func TestCompletePendingIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, session.ID, clientID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func completeSession(t *testing.T, f *fixture) *models.Session {
	t.Helper()
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)
	completed, err := f.svc.Complete(ctx, session.ID, clientID)
	require.NoError(t, err)
	return completed
}

func TestRateBoundsAndUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := completeSession(t, f)

	for _, bad := range []int{0, 6, -1} {
		_, err := f.svc.Rate(ctx, session.ID, clientID, bad, "")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeBadRequest))
	}

	_, err := f.svc.Rate(ctx, session.ID, advisorID, 5, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	review, err := f.svc.Rate(ctx, session.ID, clientID, 4, "helpful")
	require.NoError(t, err)
	assert.Equal(t, 4, review.Rating)
	assert.Equal(t, advisorID, review.AdvisorID)

	_, err = f.svc.Rate(ctx, session.ID, clientID, 5, "changed my mind")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyReviewed))

	received := f.notifier.byKind(NotifyReviewReceived)
	require.Len(t, received, 1)
	assert.Equal(t, advisorID, received[0].UserID)
}

func TestRateRequiresCompletedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	_, err = f.svc.Rate(ctx, session.ID, clientID, 4, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidState))
}

func TestRateUpdatesAdvisorAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ratings := []int{4, 4, 5}
	var client uint = 10
	for _, r := range ratings {
		session, err := f.svc.Request(ctx, client, advisorID, "theme")
		require.NoError(t, err)
		_, err = f.svc.Accept(ctx, session.ID, advisorID)
		require.NoError(t, err)
		_, err = f.svc.Complete(ctx, session.ID, client)
		require.NoError(t, err)
		_, err = f.svc.Rate(ctx, session.ID, client, r, "")
		require.NoError(t, err)
		client++
		f.advance(2 * time.Minute)
	}

	profile, err := f.advisors.GetProfile(ctx, advisorID)
	require.NoError(t, err)
	assert.InDelta(t, 4.33, profile.Rating, 0.0001)
	assert.Equal(t, 3, profile.ReviewCount)
}

func TestExpireMovesPendingPastDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, buffered, err := f.svc.Send(ctx, session.ID, clientID, "anyone there?", "")
	require.NoError(t, err)
	require.True(t, buffered)

	f.advance(16 * time.Minute)
	require.NoError(t, f.svc.Expire(ctx, session.ID))

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)

	drained, err := f.buffer.Drain(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, drained)

	expired := f.notifier.byKind(NotifyExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, clientID, expired[0].UserID)

	state, err := f.cursors.Get(ctx, clientID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestExpireBeforeDeadlineIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	f.advance(time.Minute)
	require.NoError(t, f.svc.Expire(ctx, session.ID))

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestExpireAfterAcceptIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)

	f.advance(16 * time.Minute)
	require.NoError(t, f.svc.Expire(ctx, session.ID))

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Empty(t, f.notifier.byKind(NotifyExpired))
}

func TestExpireIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)

	f.advance(16 * time.Minute)
	require.NoError(t, f.svc.Expire(ctx, session.ID))
	require.NoError(t, f.svc.Expire(ctx, session.ID))

	// Redundant expiry produces exactly one notification.
	assert.Len(t, f.notifier.byKind(NotifyExpired), 1)
}

func TestMessagesRequireParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "theme")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, session.ID, advisorID)
	require.NoError(t, err)
	_, _, err = f.svc.Send(ctx, session.ID, clientID, "hello", "")
	require.NoError(t, err)

	_, err = f.svc.Messages(ctx, session.ID, uint(99), 50, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	history, err := f.svc.Messages(ctx, session.ID, advisorID, 50, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestClientCanRequestAgainAfterTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Request(ctx, clientID, advisorID, "first")
	require.NoError(t, err)
	_, err = f.svc.Decline(ctx, session.ID, advisorID)
	require.NoError(t, err)

	f.advance(2 * time.Minute)
	next, err := f.svc.Request(ctx, clientID, advisorID, "second")
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, next.ID)
}
