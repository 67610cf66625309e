// Package service implements the participant-facing session operations:
// lifecycle, action submission, dice reveal, equipment and stuck-session
// recovery. Everything narrative is left to the reconciler; the service
// only ever touches the fields a non-host participant is allowed to write.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"saga-server/internal/identity"
	"saga-server/internal/models"
	"saga-server/internal/store"
)

// SessionService defines the operations any participant may perform.
type SessionService interface {
	CreateSession(ctx context.Context, params CreateSessionParams) (*models.Session, error)
	GetSession(ctx context.Context, code string) (*models.Session, error)
	JoinSession(ctx context.Context, code string, params JoinParams) (*models.Session, error)
	StartSession(ctx context.Context, code, participantID string) (*models.Session, error)
	EndSession(ctx context.Context, code, participantID string) (*models.Session, error)

	// SubmitAction posts the acting participant's free-text action: it
	// appends a participant-speaker log entry and sets the pending-action
	// marker in one write. The returned snapshot lets the submitting
	// client render immediately, before the fan-out arrives.
	SubmitAction(ctx context.Context, code, participantID, text string) (*models.Session, error)

	// RevealRoll persists the reveal of a dice roll so all participants
	// converge on the same revealed state. Revealing an already-revealed
	// roll is a no-op.
	RevealRoll(ctx context.Context, code, participantID string, logEntryID int) (*models.Session, error)

	// EquipItem moves the first matching weapon or armor item from the
	// participant's inventory into the corresponding slot, returning the
	// previous occupant to the inventory.
	EquipItem(ctx context.Context, code, participantID, itemName string) (*models.Session, error)

	// ForceUnstick lets any participant clear a reconciliation that has
	// been underway longer than the configured deadline, unblocking the
	// session after a host that vanished mid-turn.
	ForceUnstick(ctx context.Context, code, participantID string) (*models.Session, error)
}

// CreateSessionParams describes a new session and its host participant.
type CreateSessionParams struct {
	HostName      string
	HostPersona   string
	ParticipantID string // optional; generated when empty
	Locale        string
	WorldContext  *models.WorldContext
}

// JoinParams describes a joining participant.
type JoinParams struct {
	ParticipantID string // optional; generated when empty
	Name          string
	Persona       string
}

type sessionServiceImpl struct {
	store        store.SessionStore
	logger       *zap.Logger
	stuckAfter   time.Duration
	defaultMaxHP int
}

// NewSessionService creates a SessionService.
func NewSessionService(st store.SessionStore, stuckAfter time.Duration, defaultMaxHP int, logger *zap.Logger) SessionService {
	if stuckAfter <= 0 {
		stuckAfter = 2 * time.Minute
	}
	if defaultMaxHP <= 0 {
		defaultMaxHP = 20
	}
	return &sessionServiceImpl{
		store:        st,
		logger:       logger.Named("SessionService"),
		stuckAfter:   stuckAfter,
		defaultMaxHP: defaultMaxHP,
	}
}

func (s *sessionServiceImpl) CreateSession(ctx context.Context, params CreateSessionParams) (*models.Session, error) {
	hostID := params.ParticipantID
	if hostID == "" {
		hostID = identity.NewParticipantID()
	}
	locale := params.Locale
	if locale != "ru" {
		locale = "en"
	}

	session := &models.Session{
		ID:        identity.NewSessionCode(),
		HostID:    hostID,
		Status:    models.StatusForming,
		Locale:    locale,
		TurnIndex: 0,
		Log:       []models.LogEntry{},
		Participants: []models.Participant{
			s.newParticipant(hostID, params.HostName, params.HostPersona),
		},
		WorldContext: params.WorldContext,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("Session created",
		zap.String("sessionId", session.ID),
		zap.String("hostId", hostID),
		zap.String("locale", locale))
	return session, nil
}

func (s *sessionServiceImpl) GetSession(ctx context.Context, code string) (*models.Session, error) {
	return s.store.Get(ctx, normalizeCode(code))
}

func (s *sessionServiceImpl) JoinSession(ctx context.Context, code string, params JoinParams) (*models.Session, error) {
	pid := params.ParticipantID
	if pid == "" {
		pid = identity.NewParticipantID()
	}

	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		if sess.Status == models.StatusEnded {
			return models.ErrSessionEnded
		}
		// Joining twice with the same identity is an idempotent no-op.
		if sess.FindParticipantByID(pid) != nil {
			return nil
		}
		sess.Participants = append(sess.Participants, s.newParticipant(pid, params.Name, params.Persona))
		return nil
	})
}

func (s *sessionServiceImpl) StartSession(ctx context.Context, code, participantID string) (*models.Session, error) {
	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		if sess.HostID != participantID {
			return models.ErrNotHost
		}
		if sess.Status == models.StatusEnded {
			return models.ErrSessionEnded
		}
		if sess.Status == models.StatusActive {
			return nil
		}
		sess.Status = models.StatusActive
		sess.Log = append(sess.Log, models.LogEntry{
			ID:      sess.NextLogID(),
			Speaker: models.SpeakerSystem,
			Text:    introText(sess),
		})
		return nil
	})
}

func (s *sessionServiceImpl) EndSession(ctx context.Context, code, participantID string) (*models.Session, error) {
	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		if sess.HostID != participantID {
			return models.ErrNotHost
		}
		sess.Status = models.StatusEnded
		return nil
	})
}

func (s *sessionServiceImpl) SubmitAction(ctx context.Context, code, participantID, text string) (*models.Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrEmptyAction
	}

	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		if sess.Status != models.StatusActive {
			return models.ErrSessionNotActive
		}
		if sess.Busy {
			return models.ErrSessionBusy
		}
		if sess.PendingAction != nil {
			return models.ErrActionPending
		}
		actor := sess.CurrentParticipant()
		if actor == nil || actor.ID != participantID {
			return models.ErrNotYourTurn
		}

		sess.Log = append(sess.Log, models.LogEntry{
			ID:      sess.NextLogID(),
			Speaker: actor.Name,
			Text:    text,
		})
		sess.PendingAction = &models.PendingAction{
			ParticipantID: participantID,
			Text:          text,
			SubmittedAt:   time.Now().UTC(),
		}
		return nil
	})
}

func (s *sessionServiceImpl) RevealRoll(ctx context.Context, code, participantID string, logEntryID int) (*models.Session, error) {
	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		entry := sess.FindLogEntry(logEntryID)
		if entry == nil {
			return models.ErrLogEntryNotFound
		}
		if entry.Roll == nil {
			return models.ErrNoRoll
		}
		if entry.Roll.RollingPlayerID != participantID {
			return models.ErrNotRollingPlayer
		}
		// Idempotent: a second reveal leaves the state exactly as the
		// first one did.
		entry.Roll.Revealed = true
		return nil
	})
}

func (s *sessionServiceImpl) EquipItem(ctx context.Context, code, participantID, itemName string) (*models.Session, error) {
	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		p := sess.FindParticipantByID(participantID)
		if p == nil {
			return models.ErrParticipantNotFound
		}

		idx := -1
		for i := range p.Inventory {
			if p.Inventory[i].Name == itemName {
				idx = i
				break
			}
		}
		if idx == -1 {
			return models.ErrItemNotFound
		}

		item := p.Inventory[idx]
		var slot **models.Item
		switch item.Category {
		case models.ItemWeapon:
			slot = &p.Equipment.Weapon
		case models.ItemArmor:
			slot = &p.Equipment.Armor
		default:
			return models.ErrNotEquippable
		}

		p.Inventory = append(p.Inventory[:idx], p.Inventory[idx+1:]...)
		if *slot != nil {
			p.Inventory = append(p.Inventory, **slot)
		}
		*slot = &item
		return nil
	})
}

func (s *sessionServiceImpl) ForceUnstick(ctx context.Context, code, participantID string) (*models.Session, error) {
	return s.store.Update(ctx, normalizeCode(code), func(sess *models.Session) error {
		if sess.FindParticipantByID(participantID) == nil {
			return models.ErrParticipantNotFound
		}
		if !sess.Busy && sess.PendingAction == nil {
			return models.ErrSessionNotStuck
		}
		if sess.PendingAction != nil && time.Since(sess.PendingAction.SubmittedAt) < s.stuckAfter {
			return models.ErrSessionNotStuck
		}

		s.logger.Warn("Session force-unstuck by participant",
			zap.String("sessionId", sess.ID),
			zap.String("participantId", participantID))
		sess.Busy = false
		sess.PendingAction = nil
		sess.LastError = stuckClearedMessage(sess.Locale)
		return nil
	})
}

func (s *sessionServiceImpl) newParticipant(id, name, persona string) models.Participant {
	return models.Participant{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Persona:   strings.TrimSpace(persona),
		HP:        s.defaultMaxHP,
		MaxHP:     s.defaultMaxHP,
		Inventory: []models.Item{},
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func introText(sess *models.Session) string {
	if sess.WorldContext != nil && sess.WorldContext.Description != "" {
		return sess.WorldContext.Description
	}
	if sess.Locale == "ru" {
		return "Приключение начинается."
	}
	return "The adventure begins."
}

func stuckClearedMessage(locale string) string {
	if locale == "ru" {
		return "Ход был прерван из-за долгого ожидания. Отправьте действие ещё раз."
	}
	return "The turn was interrupted after waiting too long. Please submit the action again."
}
