package models

// TurnOutcome is the structured payload produced by the narration backend
// for one resolved action. The backend is expected, but not guaranteed, to
// honor this shape: every field except Story may be absent, null or
// semantically inconsistent, and the merge treats missing data as "no
// change" rather than as an error.
type TurnOutcome struct {
	Story           string         `json:"story"`
	Roll            *RollOutcome   `json:"roll,omitempty"`
	PlayerUpdates   []PlayerUpdate `json:"player_updates,omitempty"`
	EnemyUpdate     *EnemyUpdate   `json:"enemy_update,omitempty"`
	NextPlayerIndex *int           `json:"next_player_index,omitempty"`
	Lore            []LoreUpdate   `json:"lore,omitempty"`
}

// PlayerUpdate is a partial update for one participant, keyed by display
// name because the backend never sees internal identities.
type PlayerUpdate struct {
	PlayerName      string   `json:"player_name"`
	HP              *int     `json:"hp,omitempty"`
	InventoryAdd    []Item   `json:"inventory_add,omitempty"`
	InventoryRemove []string `json:"inventory_remove,omitempty"`
}

// EnemyUpdate describes the opponent after this turn. Defeated clears the
// opponent; a complete name+hp+maxHp triple replaces it wholesale; anything
// less leaves the previous opponent untouched.
type EnemyUpdate struct {
	Name     string `json:"name"`
	HP       *int   `json:"hp,omitempty"`
	MaxHP    *int   `json:"max_hp,omitempty"`
	Defeated bool   `json:"defeated"`
}

// RollOutcome is a dice roll the backend attached to the narration.
type RollOutcome struct {
	Skill           string `json:"skill"`
	Roll            int    `json:"roll"`
	Modifier        int    `json:"modifier"`
	Total           int    `json:"total"`
	DifficultyClass int    `json:"difficulty_class"`
	Success         bool   `json:"success"`
}

// LoreUpdate is a proposed codex entry.
type LoreUpdate struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
}
