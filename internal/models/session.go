package models

import (
	"strings"
	"time"
)

// SessionStatus describes the lifecycle phase of a session.
type SessionStatus string

const (
	StatusForming SessionStatus = "forming"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// Speaker tags for log entries. Participant entries use the participant's
// display name as the speaker.
const (
	SpeakerStory  = "story"
	SpeakerSystem = "system"
)

// Session is the shared mutable document for one game. It is stored as a
// single JSON document keyed by its short code and replaced wholesale on
// each write (last-writer-wins at the store layer; only the host ever
// writes the narrative fields).
type Session struct {
	ID           string        `json:"id"`
	HostID       string        `json:"hostId"`
	Status       SessionStatus `json:"status"`
	Locale       string        `json:"locale"`
	Participants []Participant `json:"participants"`
	TurnIndex    int           `json:"turnIndex"`
	Log          []LogEntry    `json:"log"`

	ActiveOpponent *Opponent      `json:"activeOpponent,omitempty"`
	PendingAction  *PendingAction `json:"pendingAction,omitempty"`
	Busy           bool           `json:"busy"`
	LastError      string         `json:"lastError,omitempty"`

	WorldContext *WorldContext `json:"worldContext,omitempty"`
	Codex        []LoreEntry   `json:"codex,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PendingAction marks an action submitted but not yet reconciled. Its
// presence means "awaiting reconciliation"; absence means the session is
// quiescent.
type PendingAction struct {
	ParticipantID string    `json:"participantId"`
	Text          string    `json:"text"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// WorldContext is an immutable narrative seed set at session creation.
type WorldContext struct {
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
}

// Participant is one player in the session. Insertion order into
// Session.Participants is the turn order.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Persona   string    `json:"persona,omitempty"`
	HP        int       `json:"hp"`
	MaxHP     int       `json:"maxHp"`
	Inventory []Item    `json:"inventory"`
	Equipment Equipment `json:"equipment"`
}

// Equipment holds the two slots a participant may fill. Each slot holds at
// most one item.
type Equipment struct {
	Weapon *Item `json:"weapon,omitempty"`
	Armor  *Item `json:"armor,omitempty"`
}

// ItemCategory classifies an inventory item.
type ItemCategory string

const (
	ItemWeapon ItemCategory = "weapon"
	ItemArmor  ItemCategory = "armor"
	ItemPotion ItemCategory = "potion"
	ItemMisc   ItemCategory = "misc"
)

// Item is an inventory entry. Names identify items within one participant's
// inventory only; duplicates by name are allowed. The numeric modifiers are
// relevant to the item's category only.
type Item struct {
	Name        string       `json:"name"`
	Category    ItemCategory `json:"category"`
	Description string       `json:"description,omitempty"`
	Damage      *int         `json:"damage,omitempty"`
	ArmorClass  *int         `json:"armorClass,omitempty"`
	Healing     *int         `json:"healing,omitempty"`
}

// Opponent is the single enemy active in combat, if any. It is created or
// replaced wholesale by a reconciliation and removed when marked defeated.
type Opponent struct {
	Name     string `json:"name"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"maxHp"`
	Defeated bool   `json:"defeated"`
}

// LogEntry is one line of the canonical narrative. IDs are session-scoped,
// dense and sequential from zero, and never reused even though the log
// slice itself is replaced wholesale on each write.
type LogEntry struct {
	ID           int       `json:"id"`
	Speaker      string    `json:"speaker"`
	Text         string    `json:"text"`
	Roll         *DiceRoll `json:"roll,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	ImagePending bool      `json:"imagePending,omitempty"`
}

// DiceRoll is a skill check attached to a log entry. It arrives unrevealed;
// only the participant named in RollingPlayerID may trigger the reveal, and
// the reveal is persisted so all participants converge on the same state.
type DiceRoll struct {
	Skill           string `json:"skill"`
	Roll            int    `json:"roll"`
	Modifier        int    `json:"modifier"`
	Total           int    `json:"total"`
	DifficultyClass int    `json:"difficultyClass"`
	Success         bool   `json:"success"`
	Revealed        bool   `json:"revealed"`
	RollingPlayerID string `json:"rollingPlayerId"`
}

// LoreEntry is one discovered codex entry. Entries are unique by
// case-insensitive title; later duplicates are dropped silently.
type LoreEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}

// NextLogID returns the id for the next log entry. IDs are dense and
// sequential, so the next id is the current log length.
func (s *Session) NextLogID() int {
	return len(s.Log)
}

// FindParticipantByID returns a pointer into Participants for the given
// identity, or nil if absent.
func (s *Session) FindParticipantByID(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// FindParticipantByName returns a pointer into Participants for the given
// display name, or nil if absent. Matching is exact; the narration backend
// only knows display names.
func (s *Session) FindParticipantByName(name string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].Name == name {
			return &s.Participants[i]
		}
	}
	return nil
}

// FindLogEntry returns a pointer into Log for the given entry id, or nil.
func (s *Session) FindLogEntry(id int) *LogEntry {
	for i := range s.Log {
		if s.Log[i].ID == id {
			return &s.Log[i]
		}
	}
	return nil
}

// HasLoreTitle reports whether the codex already holds an entry with the
// given title, compared case-insensitively.
func (s *Session) HasLoreTitle(title string) bool {
	for i := range s.Codex {
		if strings.EqualFold(s.Codex[i].Title, title) {
			return true
		}
	}
	return false
}

// CurrentParticipant returns the participant whose action is expected, or
// nil if the session has no participants.
func (s *Session) CurrentParticipant() *Participant {
	if len(s.Participants) == 0 || s.TurnIndex < 0 || s.TurnIndex >= len(s.Participants) {
		return nil
	}
	return &s.Participants[s.TurnIndex]
}

// Clone returns a deep copy of the session. The reconciler builds the next
// state on a copy and never mutates the observed state in place.
func (s *Session) Clone() *Session {
	next := *s

	next.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		next.Participants[i] = p.clone()
	}

	next.Log = make([]LogEntry, len(s.Log))
	for i, e := range s.Log {
		next.Log[i] = e
		if e.Roll != nil {
			roll := *e.Roll
			next.Log[i].Roll = &roll
		}
	}

	if s.ActiveOpponent != nil {
		opp := *s.ActiveOpponent
		next.ActiveOpponent = &opp
	}
	if s.PendingAction != nil {
		pa := *s.PendingAction
		next.PendingAction = &pa
	}
	if s.WorldContext != nil {
		wc := *s.WorldContext
		next.WorldContext = &wc
	}
	if s.Codex != nil {
		next.Codex = make([]LoreEntry, len(s.Codex))
		copy(next.Codex, s.Codex)
	}

	return &next
}

func (p Participant) clone() Participant {
	next := p
	next.Inventory = make([]Item, len(p.Inventory))
	for i, it := range p.Inventory {
		next.Inventory[i] = it.clone()
	}
	if p.Equipment.Weapon != nil {
		w := p.Equipment.Weapon.clone()
		next.Equipment.Weapon = &w
	}
	if p.Equipment.Armor != nil {
		a := p.Equipment.Armor.clone()
		next.Equipment.Armor = &a
	}
	return next
}

func (it Item) clone() Item {
	next := it
	if it.Damage != nil {
		v := *it.Damage
		next.Damage = &v
	}
	if it.ArmorClass != nil {
		v := *it.ArmorClass
		next.ArmorClass = &v
	}
	if it.Healing != nil {
		v := *it.Healing
		next.Healing = &v
	}
	return next
}
