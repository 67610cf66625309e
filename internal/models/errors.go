package models

import "errors"

// Application-wide standard errors
var (
	// Session lifecycle
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionEnded     = errors.New("session has ended")
	ErrSessionNotActive = errors.New("session is not active")
	ErrNotHost          = errors.New("only the host may do this")

	// Action submission
	ErrNotYourTurn   = errors.New("it is not this participant's turn")
	ErrActionPending = errors.New("an action is already awaiting reconciliation")
	ErrSessionBusy   = errors.New("session is busy resolving a turn")
	ErrEmptyAction   = errors.New("action text is empty")

	// Participants & items
	ErrParticipantNotFound = errors.New("participant not found in session")
	ErrItemNotFound        = errors.New("item not found in inventory")
	ErrNotEquippable       = errors.New("item cannot be equipped")

	// Dice reveal
	ErrLogEntryNotFound = errors.New("log entry not found")
	ErrNoRoll           = errors.New("log entry has no dice roll")
	ErrNotRollingPlayer = errors.New("participant is not authorized to reveal this roll")

	// Recovery
	ErrSessionNotStuck = errors.New("session is not stuck")

	// Narration backend
	ErrEmptyNarration = errors.New("narration response has no story text")
)
