package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	illustrationmocks "saga-server/internal/illustration/mocks"
	"saga-server/internal/models"
	narrationmocks "saga-server/internal/narration/mocks"
	"saga-server/internal/store"
)

func seedSession(t *testing.T, st store.SessionStore, sess *models.Session) {
	t.Helper()
	require.NoError(t, st.Create(context.Background(), sess))
}

func pendingSession() *models.Session {
	return &models.Session{
		ID:     "GAMEAA",
		HostID: "host-id",
		Status: models.StatusActive,
		Locale: "en",
		Participants: []models.Participant{
			{ID: "host-id", Name: "A", HP: 20, MaxHP: 20, Inventory: []models.Item{}},
			{ID: "guest-id", Name: "B", HP: 20, MaxHP: 20, Inventory: []models.Item{}},
		},
		TurnIndex: 0,
		Log: []models.LogEntry{
			{ID: 0, Speaker: models.SpeakerSystem, Text: "The adventure begins."},
			{ID: 1, Speaker: "A", Text: "I open the door."},
		},
		PendingAction: &models.PendingAction{
			ParticipantID: "host-id",
			Text:          "I open the door.",
			SubmittedAt:   time.Now(),
		},
	}
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Run("Successful turn writes merged state", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, "I open the door.").
			Return(&models.TurnOutcome{
				Story: "The door creaks open into darkness.",
				PlayerUpdates: []models.PlayerUpdate{
					{PlayerName: "A", HP: intPtr(18)},
				},
			}, nil)

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		got, err := st.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.Log, 3)
		assert.Equal(t, "The door creaks open into darkness.", got.Log[2].Text)
		assert.Equal(t, 18, got.Participants[0].HP)
		assert.Equal(t, 1, got.TurnIndex)
		assert.Nil(t, got.PendingAction)
		assert.False(t, got.Busy)
		assert.Empty(t, got.LastError)
		narrator.AssertExpectations(t)
	})

	t.Run("Backend failure recovers without touching the log", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("model unavailable"))

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		got, err := st.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.Log, 2, "narrative must not change on failure")
		assert.False(t, got.Busy)
		assert.Nil(t, got.PendingAction)
		assert.NotEmpty(t, got.LastError)
		assert.Equal(t, 0, got.TurnIndex, "turn must not advance on failure")
	})

	t.Run("Localized error message for russian sessions", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		sess.Locale = "ru"
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("model unavailable"))

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		got, err := st.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, userErrorMessage("ru"), got.LastError)
	})

	t.Run("Pending action from departed participant is ignored", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		sess.PendingAction.ParticipantID = "long-gone"
		seedSession(t, st, sess)

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		got, err := st.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.Log, 2)
		assert.False(t, got.Busy)
		assert.NotNil(t, got.PendingAction, "document is not touched at all")
		narrator.AssertNotCalled(t, "ResolveTurn", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Already resolved action is a no-op", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		stale := *sess.PendingAction
		sess.PendingAction = nil
		seedSession(t, st, sess)

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, stale)

		narrator.AssertNotCalled(t, "ResolveTurn", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReconciler_HostGuard(t *testing.T) {
	t.Run("Non-host watcher never reconciles", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		seedSession(t, st, sess)

		r := New(st, narrator, nil, zap.NewNop())
		r.maybeReconcile(context.Background(), sess, "guest-id")

		time.Sleep(50 * time.Millisecond)
		narrator.AssertNotCalled(t, "ResolveTurn", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Busy session is not reconciled again", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		sess.Busy = true
		seedSession(t, st, sess)

		r := New(st, narrator, nil, zap.NewNop())
		r.maybeReconcile(context.Background(), sess, "host-id")

		time.Sleep(50 * time.Millisecond)
		narrator.AssertNotCalled(t, "ResolveTurn", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Quiescent session triggers nothing", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		sess.PendingAction = nil
		seedSession(t, st, sess)

		r := New(st, narrator, nil, zap.NewNop())
		r.maybeReconcile(context.Background(), sess, "host-id")

		time.Sleep(50 * time.Millisecond)
		narrator.AssertNotCalled(t, "ResolveTurn", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Host watcher picks up a pending action via the feed", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(&models.TurnOutcome{Story: "Resolved."}, nil)

		r := New(st, narrator, nil, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Watch(ctx, sess.ID, "host-id")

		assert.Eventually(t, func() bool {
			got, err := st.Get(context.Background(), sess.ID)
			return err == nil && got.PendingAction == nil && !got.Busy && len(got.Log) == 3
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestReconciler_Illustrations(t *testing.T) {
	t.Run("New opponent gets an image patched onto its entry", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		generator := new(illustrationmocks.MockGenerator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(&models.TurnOutcome{
				Story: "A troll blocks the path.",
				EnemyUpdate: &models.EnemyUpdate{
					Name: "Troll", HP: intPtr(30), MaxHP: intPtr(30),
				},
			}, nil)
		generator.On("Generate", mock.Anything, mock.Anything).
			Return("https://images.example/troll.png", nil)

		r := New(st, narrator, generator, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		assert.Eventually(t, func() bool {
			got, err := st.Get(context.Background(), sess.ID)
			if err != nil {
				return false
			}
			entry := got.FindLogEntry(2)
			return entry != nil && entry.ImageURL == "https://images.example/troll.png" && !entry.ImagePending
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("Image failure clears the pending flag and moves on", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		generator := new(illustrationmocks.MockGenerator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(&models.TurnOutcome{
				Story: "A troll blocks the path.",
				EnemyUpdate: &models.EnemyUpdate{
					Name: "Troll", HP: intPtr(30), MaxHP: intPtr(30),
				},
			}, nil)
		generator.On("Generate", mock.Anything, mock.Anything).
			Return("", errors.New("generator offline"))

		r := New(st, narrator, generator, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		assert.Eventually(t, func() bool {
			got, err := st.Get(context.Background(), sess.ID)
			if err != nil {
				return false
			}
			entry := got.FindLogEntry(2)
			return entry != nil && entry.ImageURL == "" && !entry.ImagePending
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("No illustrator configured is fine", func(t *testing.T) {
		st := store.NewMemoryStore()
		narrator := new(narrationmocks.MockNarrator)
		sess := pendingSession()
		seedSession(t, st, sess)

		narrator.On("ResolveTurn", mock.Anything, mock.Anything, mock.Anything).
			Return(&models.TurnOutcome{
				Story: "A troll blocks the path.",
				EnemyUpdate: &models.EnemyUpdate{
					Name: "Troll", HP: intPtr(30), MaxHP: intPtr(30),
				},
			}, nil)

		r := New(st, narrator, nil, zap.NewNop())
		r.reconcile(context.Background(), sess.ID, *sess.PendingAction)

		got, err := st.Get(context.Background(), sess.ID)
		require.NoError(t, err)
		entry := got.FindLogEntry(2)
		require.NotNil(t, entry)
		assert.True(t, entry.ImagePending)
	})
}
