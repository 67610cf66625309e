package reconciler

import (
	"strings"

	"saga-server/internal/models"
)

// MergeResult describes what Apply produced beyond the next state.
type MergeResult struct {
	Next *models.Session
	// LogEntryID is the id of the story entry appended this turn, used by
	// the deferred illustration patch.
	LogEntryID int
	// NewOpponent is true when this turn introduced an opponent that
	// differs by name from the previous one.
	NewOpponent bool
}

// Apply merges a narration outcome into the session and returns the next
// state. It is a pure total function over its inputs: the current session
// is never mutated, and every combination of present/absent outcome fields
// is defined: missing or partial data means "no change" for that field,
// never an error. A thrown error here would strand the session busy with
// nobody but this same host able to recover it.
//
// actorID is the identity of the participant whose pending action is being
// resolved; it authorizes the reveal of any dice roll attached this turn.
func Apply(cur *models.Session, actorID string, outcome *models.TurnOutcome) MergeResult {
	next := cur.Clone()

	applyPlayerUpdates(next, outcome.PlayerUpdates)
	newOpponent := applyEnemyUpdate(next, outcome.EnemyUpdate)
	applyLore(next, outcome.Lore)
	entryID := appendStoryEntry(next, actorID, outcome, newOpponent)
	advanceTurn(next, outcome.NextPlayerIndex)

	next.Busy = false
	next.PendingAction = nil
	next.LastError = ""

	return MergeResult{Next: next, LogEntryID: entryID, NewOpponent: newOpponent}
}

// applyPlayerUpdates merges per-participant updates. Targets are resolved
// by display name, since the backend never sees internal identities, and
// updates for unknown names are skipped outright.
func applyPlayerUpdates(next *models.Session, updates []models.PlayerUpdate) {
	for _, upd := range updates {
		target := next.FindParticipantByName(upd.PlayerName)
		if target == nil {
			continue
		}

		// HP changes only on an explicit value, never implicitly. The
		// backend is not trusted to keep hp within bounds.
		if upd.HP != nil {
			hp := *upd.HP
			if hp < 0 {
				hp = 0
			}
			if hp > target.MaxHP {
				hp = target.MaxHP
			}
			target.HP = hp
		}

		// Absence of an inventory is "empty", not an error.
		if target.Inventory == nil {
			target.Inventory = []models.Item{}
		}
		target.Inventory = append(target.Inventory, upd.InventoryAdd...)

		for _, name := range upd.InventoryRemove {
			target.Inventory = removeItemsByName(target.Inventory, name)
		}
	}
}

// removeItemsByName deletes every item whose name matches exactly, not
// just the first.
func removeItemsByName(inventory []models.Item, name string) []models.Item {
	kept := inventory[:0]
	for _, it := range inventory {
		if it.Name != name {
			kept = append(kept, it)
		}
	}
	return kept
}

// applyEnemyUpdate merges the opponent update and reports whether a fresh
// opponent appeared. A response lacking enemy_update must never be read as
// "opponent removed".
func applyEnemyUpdate(next *models.Session, upd *models.EnemyUpdate) bool {
	if upd == nil {
		return false
	}

	if upd.Defeated {
		next.ActiveOpponent = nil
		return false
	}

	// Only a complete triple replaces the opponent. The defeated flag is
	// forced false here: defeat is only ever set via the explicit signal
	// above, whatever the backend claims.
	if upd.Name != "" && upd.HP != nil && upd.MaxHP != nil {
		fresh := next.ActiveOpponent == nil || next.ActiveOpponent.Name != upd.Name
		next.ActiveOpponent = &models.Opponent{
			Name:     upd.Name,
			HP:       *upd.HP,
			MaxHP:    *upd.MaxHP,
			Defeated: false,
		}
		return fresh
	}

	return false
}

// applyLore appends proposed codex entries, silently dropping titles that
// already exist case-insensitively.
func applyLore(next *models.Session, lore []models.LoreUpdate) {
	for _, l := range lore {
		title := strings.TrimSpace(l.Title)
		if title == "" || next.HasLoreTitle(title) {
			continue
		}
		next.Codex = append(next.Codex, models.LoreEntry{
			ID:       loreID(l.Category, title),
			Title:    title,
			Content:  l.Content,
			Category: l.Category,
		})
	}
}

// loreID synthesizes a stable codex id from category and title.
func loreID(category, title string) string {
	slug := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				return r
			case r == ' ' || r == '-' || r == '_':
				return '-'
			default:
				return -1
			}
		}, s)
	}
	if category == "" {
		category = "lore"
	}
	return slug(category) + ":" + slug(title)
}

// appendStoryEntry allocates the next log id and appends the narrative
// text, attaching the dice roll only when the backend provided one.
func appendStoryEntry(next *models.Session, actorID string, outcome *models.TurnOutcome, newOpponent bool) int {
	entry := models.LogEntry{
		ID:           next.NextLogID(),
		Speaker:      models.SpeakerStory,
		Text:         outcome.Story,
		ImagePending: newOpponent,
	}
	if outcome.Roll != nil {
		entry.Roll = &models.DiceRoll{
			Skill:           outcome.Roll.Skill,
			Roll:            outcome.Roll.Roll,
			Modifier:        outcome.Roll.Modifier,
			Total:           outcome.Roll.Total,
			DifficultyClass: outcome.Roll.DifficultyClass,
			Success:         outcome.Roll.Success,
			Revealed:        false,
			RollingPlayerID: actorID,
		}
	}
	next.Log = append(next.Log, entry)
	return entry.ID
}

// advanceTurn applies the backend-provided index when it is a valid
// participant index, falling back to simple rotation so the game makes
// forward progress even when the field is absent or nonsense.
func advanceTurn(next *models.Session, index *int) {
	if len(next.Participants) == 0 {
		return
	}
	if index != nil && *index >= 0 && *index < len(next.Participants) {
		next.TurnIndex = *index
		return
	}
	next.TurnIndex = (next.TurnIndex + 1) % len(next.Participants)
}
