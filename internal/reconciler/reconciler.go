// Package reconciler implements the single-writer turn protocol: exactly
// one participant, the host, converts narration responses into new
// shared state. Every participant's watcher independently evaluates the
// host guard on each state change; only the watcher whose local identity
// equals the session's hostId ever proceeds, so no distributed lock is
// needed.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"saga-server/internal/illustration"
	"saga-server/internal/models"
	"saga-server/internal/narration"
	"saga-server/internal/store"
)

// Reconciler owns the logic that advances a session from "action pending"
// to "action resolved".
type Reconciler struct {
	store       store.SessionStore
	narrator    narration.Narrator
	illustrator illustration.Generator // may be nil; illustrations are then skipped
	logger      *zap.Logger

	// inFlight prevents two watchers inside this process (say, the host
	// opened two tabs) from reconciling the same session concurrently.
	// Cross-process exclusion rests entirely on the hostId guard.
	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a Reconciler.
func New(st store.SessionStore, narrator narration.Narrator, illustrator illustration.Generator, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:       st,
		narrator:    narrator,
		illustrator: illustrator,
		logger:      logger.Named("Reconciler"),
		inFlight:    make(map[string]bool),
	}
}

// Watch consumes the session's change feed on behalf of one participant
// and triggers a reconciliation whenever the host guard passes. It blocks
// until ctx is cancelled. Every participant's connection runs a Watch with
// its own identity; only the host's ever does work.
func (r *Reconciler) Watch(ctx context.Context, sessionID, localIdentity string) error {
	updates, err := r.store.Subscribe(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to subscribe to session %s: %w", sessionID, err)
	}

	// Evaluate the current document once up front: an action submitted
	// while the host was offline must still reconcile when it reconnects.
	if sess, err := r.store.Get(ctx, sessionID); err == nil {
		r.maybeReconcile(ctx, sess, localIdentity)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sess, ok := <-updates:
			if !ok {
				return nil
			}
			r.maybeReconcile(ctx, sess, localIdentity)
		}
	}
}

// maybeReconcile is the trigger condition: host identity matches, an
// action is pending and no reconciliation is already underway.
func (r *Reconciler) maybeReconcile(ctx context.Context, sess *models.Session, localIdentity string) {
	if sess.HostID != localIdentity || sess.PendingAction == nil || sess.Busy {
		return
	}
	if !r.claim(sess.ID) {
		return
	}
	go func() {
		defer r.release(sess.ID)
		r.reconcile(ctx, sess.ID, *sess.PendingAction)
	}()
}

func (r *Reconciler) claim(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[sessionID] {
		return false
	}
	r.inFlight[sessionID] = true
	return true
}

func (r *Reconciler) release(sessionID string) {
	r.mu.Lock()
	delete(r.inFlight, sessionID)
	r.mu.Unlock()
}

// reconcile runs one full cycle: mark busy, call the narration backend,
// merge, write back. Any failure past the busy mark goes through the
// recovery path so the session never stays stuck on an error.
func (r *Reconciler) reconcile(ctx context.Context, sessionID string, pending models.PendingAction) {
	started := time.Now()
	log := r.logger.With(zap.String("sessionId", sessionID),
		zap.String("participantId", pending.ParticipantID))

	// Mark busy so every participant renders a loading state, and take the
	// written document as the merge basis: it is the freshest snapshot the
	// store has, including any optimistic log appends. A stale action from
	// a departed participant aborts silently before anything is written.
	sess, err := r.store.Update(ctx, sessionID, func(s *models.Session) error {
		if s.PendingAction == nil {
			return errNothingPending
		}
		if s.FindParticipantByID(pending.ParticipantID) == nil {
			return errStaleActor
		}
		s.Busy = true
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errNothingPending):
			// someone else already resolved it
		case errors.Is(err, errStaleActor):
			log.Warn("Pending action from unknown participant, ignoring")
			reconciliationsTotal.WithLabelValues("stale_actor").Inc()
		default:
			log.Error("Failed to mark session busy", zap.Error(err))
			reconciliationsTotal.WithLabelValues("store_error").Inc()
		}
		return
	}

	outcome, err := r.narrator.ResolveTurn(ctx, sess, pending.Text)
	if err != nil {
		log.Warn("Narration backend failed", zap.Error(err))
		r.recover(ctx, sessionID, userErrorMessage(sess.Locale))
		reconciliationsTotal.WithLabelValues("backend_error").Inc()
		return
	}

	result := Apply(sess, pending.ParticipantID, outcome)
	if err := r.store.Put(ctx, result.Next); err != nil {
		log.Error("Failed to write reconciled state", zap.Error(err))
		r.recover(ctx, sessionID, userErrorMessage(sess.Locale))
		reconciliationsTotal.WithLabelValues("store_error").Inc()
		return
	}

	reconciliationsTotal.WithLabelValues("success").Inc()
	reconciliationDuration.Observe(time.Since(started).Seconds())
	log.Info("Turn reconciled",
		zap.Int("logEntryId", result.LogEntryID),
		zap.Int("turnIndex", result.Next.TurnIndex),
		zap.Bool("newOpponent", result.NewOpponent))

	if result.NewOpponent && r.illustrator != nil {
		opponent := result.Next.ActiveOpponent.Name
		// Deferred side effect; deliberately not bound to the watcher ctx
		// so a dropped connection does not abort an in-flight image.
		go r.attachIllustration(context.WithoutCancel(ctx), sessionID, result.LogEntryID, opponent)
	}
}

var (
	errNothingPending = errors.New("no pending action")
	errStaleActor     = errors.New("pending action from departed participant")
)

// recover re-reads the live state, surfaces the error to users and clears
// the busy/pending markers so the acting participant can resubmit.
func (r *Reconciler) recover(ctx context.Context, sessionID, message string) {
	_, err := r.store.Update(ctx, sessionID, func(s *models.Session) error {
		s.Busy = false
		s.PendingAction = nil
		s.LastError = message
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to recover session state",
			zap.String("sessionId", sessionID), zap.Error(err))
	}
}

// attachIllustration requests an image for the freshly appeared opponent
// and patches it onto the turn's log entry. It re-reads live state right
// before patching rather than reusing the stale merge copy, so writes that
// landed in between are not clobbered. Failure leaves the entry without an
// image permanently; there is no retry.
func (r *Reconciler) attachIllustration(ctx context.Context, sessionID string, entryID int, opponentName string) {
	log := r.logger.With(zap.String("sessionId", sessionID), zap.Int("logEntryId", entryID))

	url, err := r.illustrator.Generate(ctx, illustrationPrompt(opponentName))
	if err != nil {
		illustrationErrors.Inc()
		log.Warn("Illustration request failed, entry stays without image", zap.Error(err))
		r.clearImagePending(ctx, sessionID, entryID)
		return
	}

	_, err = r.store.Update(ctx, sessionID, func(s *models.Session) error {
		entry := s.FindLogEntry(entryID)
		if entry == nil {
			return models.ErrLogEntryNotFound
		}
		entry.ImageURL = url
		entry.ImagePending = false
		return nil
	})
	if err != nil {
		log.Warn("Failed to patch illustration onto log entry", zap.Error(err))
		return
	}
	log.Info("Illustration attached", zap.String("url", url))
}

func (r *Reconciler) clearImagePending(ctx context.Context, sessionID string, entryID int) {
	_, err := r.store.Update(ctx, sessionID, func(s *models.Session) error {
		if entry := s.FindLogEntry(entryID); entry != nil {
			entry.ImagePending = false
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("Failed to clear image pending flag",
			zap.String("sessionId", sessionID), zap.Error(err))
	}
}

func illustrationPrompt(opponentName string) string {
	return "Fantasy illustration of " + opponentName + ", dramatic lighting, facing the viewer"
}

// userErrorMessage is the single user-facing failure string, shown near
// the action input and cleared on the next successful turn.
func userErrorMessage(locale string) string {
	if locale == "ru" {
		return "Рассказчик сбился с мысли. Попробуйте отправить действие ещё раз."
	}
	return "The storyteller lost the thread. Please try submitting your action again."
}
