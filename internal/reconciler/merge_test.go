package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga-server/internal/models"
)

func intPtr(v int) *int { return &v }

func baseSession() *models.Session {
	return &models.Session{
		ID:     "TESTAA",
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
		},
		PendingAction: &models.PendingAction{ParticipantID: "host-id", Text: "open the door"},
		Busy:          true,
	}
}

func TestApply(t *testing.T) {
	t.Run("Successful reconciliation scenario", func(t *testing.T) {
		cur := baseSession()
		outcome := &models.TurnOutcome{
			Story: "The door creaks open.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "A", HP: intPtr(18)},
			},
			NextPlayerIndex: intPtr(1),
		}

		result := Apply(cur, "host-id", outcome)
		next := result.Next

		assert.Len(t, next.Log, len(cur.Log)+1)
		assert.Equal(t, 18, next.Participants[0].HP)
		assert.Equal(t, 1, next.TurnIndex)
		assert.Nil(t, next.PendingAction)
		assert.False(t, next.Busy)
		assert.Empty(t, next.LastError)

		// Input state must not be mutated.
		assert.Equal(t, 20, cur.Participants[0].HP)
		assert.NotNil(t, cur.PendingAction)
	})

	t.Run("Log ids strictly increase across reconciliations", func(t *testing.T) {
		sess := baseSession()
		seen := map[int]bool{}
		for _, e := range sess.Log {
			seen[e.ID] = true
		}
		for i := 0; i < 5; i++ {
			result := Apply(sess, "host-id", &models.TurnOutcome{Story: "More story."})
			sess = result.Next
			last := sess.Log[len(sess.Log)-1]
			assert.False(t, seen[last.ID], "log id %d reused", last.ID)
			seen[last.ID] = true
			for j := 1; j < len(sess.Log); j++ {
				assert.Greater(t, sess.Log[j].ID, sess.Log[j-1].ID)
			}
		}
	})

	t.Run("HP changes only when explicit", func(t *testing.T) {
		cur := baseSession()
		outcome := &models.TurnOutcome{
			Story:         "Nothing happens to anyone's health.",
			PlayerUpdates: []models.PlayerUpdate{{PlayerName: "A"}},
		}
		result := Apply(cur, "host-id", outcome)
		assert.Equal(t, 20, result.Next.Participants[0].HP)
	})

	t.Run("HP is clamped into valid range", func(t *testing.T) {
		cur := baseSession()
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story:         "A vicious blow.",
			PlayerUpdates: []models.PlayerUpdate{{PlayerName: "A", HP: intPtr(-5)}},
		})
		assert.Equal(t, 0, result.Next.Participants[0].HP)

		result = Apply(cur, "host-id", &models.TurnOutcome{
			Story:         "A miraculous overheal.",
			PlayerUpdates: []models.PlayerUpdate{{PlayerName: "A", HP: intPtr(999)}},
		})
		assert.Equal(t, 20, result.Next.Participants[0].HP)
	})

	t.Run("Unknown participant name is skipped", func(t *testing.T) {
		cur := baseSession()
		outcome := &models.TurnOutcome{
			Story: "A stranger is mentioned.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "Nobody", HP: intPtr(1)},
				{PlayerName: "B", HP: intPtr(15)},
			},
		}
		result := Apply(cur, "host-id", outcome)
		assert.Equal(t, 20, result.Next.Participants[0].HP)
		assert.Equal(t, 15, result.Next.Participants[1].HP)
	})

	t.Run("Inventory add then remove leaves content unchanged", func(t *testing.T) {
		cur := baseSession()
		cur.Participants[0].Inventory = []models.Item{
			{Name: "Rope", Category: models.ItemMisc},
		}

		added := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "A found a torch.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "A", InventoryAdd: []models.Item{{Name: "Torch", Category: models.ItemMisc}}},
			},
		})
		require.Len(t, added.Next.Participants[0].Inventory, 2)

		removed := Apply(added.Next, "host-id", &models.TurnOutcome{
			Story: "The torch burns out.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "A", InventoryRemove: []string{"Torch"}},
			},
		})
		inv := removed.Next.Participants[0].Inventory
		require.Len(t, inv, 1)
		assert.Equal(t, "Rope", inv[0].Name)
	})

	t.Run("Inventory removal deletes all items of that name", func(t *testing.T) {
		cur := baseSession()
		cur.Participants[0].Inventory = []models.Item{
			{Name: "Arrow", Category: models.ItemMisc},
			{Name: "Arrow", Category: models.ItemMisc},
			{Name: "Bow", Category: models.ItemWeapon},
		}
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "The quiver empties.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "A", InventoryRemove: []string{"Arrow"}},
			},
		})
		inv := result.Next.Participants[0].Inventory
		require.Len(t, inv, 1)
		assert.Equal(t, "Bow", inv[0].Name)
	})

	t.Run("Nil inventory is treated as empty", func(t *testing.T) {
		cur := baseSession()
		cur.Participants[1].Inventory = nil
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "B finds a coin.",
			PlayerUpdates: []models.PlayerUpdate{
				{PlayerName: "B", InventoryAdd: []models.Item{{Name: "Coin", Category: models.ItemMisc}}},
			},
		})
		require.Len(t, result.Next.Participants[1].Inventory, 1)
	})

	t.Run("Missing enemy_update leaves opponent untouched", func(t *testing.T) {
		cur := baseSession()
		cur.ActiveOpponent = &models.Opponent{Name: "Goblin", HP: 5, MaxHP: 10}

		result := Apply(cur, "host-id", &models.TurnOutcome{Story: "The party rests."})
		require.NotNil(t, result.Next.ActiveOpponent)
		assert.Equal(t, *cur.ActiveOpponent, *result.Next.ActiveOpponent)
		assert.False(t, result.NewOpponent)
	})

	t.Run("Defeat clears opponent regardless of hp fields", func(t *testing.T) {
		cur := baseSession()
		cur.ActiveOpponent = &models.Opponent{Name: "Goblin", HP: 5, MaxHP: 10}

		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "The goblin falls.",
			EnemyUpdate: &models.EnemyUpdate{
				Name: "Goblin", HP: intPtr(3), MaxHP: intPtr(10), Defeated: true,
			},
		})
		assert.Nil(t, result.Next.ActiveOpponent)
		assert.False(t, result.NewOpponent)
	})

	t.Run("Complete triple replaces opponent wholesale", func(t *testing.T) {
		cur := baseSession()
		cur.ActiveOpponent = &models.Opponent{Name: "Goblin", HP: 5, MaxHP: 10}

		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "A troll bursts through the wall.",
			EnemyUpdate: &models.EnemyUpdate{
				Name: "Troll", HP: intPtr(30), MaxHP: intPtr(30),
			},
		})
		require.NotNil(t, result.Next.ActiveOpponent)
		assert.Equal(t, "Troll", result.Next.ActiveOpponent.Name)
		assert.False(t, result.Next.ActiveOpponent.Defeated)
		assert.True(t, result.NewOpponent)
		assert.True(t, result.Next.Log[len(result.Next.Log)-1].ImagePending)
	})

	t.Run("Defeated flag on a new triple is normalized to false", func(t *testing.T) {
		cur := baseSession()
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "A wounded wolf appears.",
			EnemyUpdate: &models.EnemyUpdate{
				// The backend cannot both introduce and defeat in one
				// update; defeat only ever comes via the explicit signal.
				Name: "Wolf", HP: intPtr(2), MaxHP: intPtr(8),
			},
		})
		require.NotNil(t, result.Next.ActiveOpponent)
		assert.False(t, result.Next.ActiveOpponent.Defeated)
	})

	t.Run("Incomplete triple leaves opponent untouched", func(t *testing.T) {
		cur := baseSession()
		cur.ActiveOpponent = &models.Opponent{Name: "Goblin", HP: 5, MaxHP: 10}

		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story:       "The goblin staggers.",
			EnemyUpdate: &models.EnemyUpdate{Name: "Goblin", HP: intPtr(2)},
		})
		require.NotNil(t, result.Next.ActiveOpponent)
		assert.Equal(t, 5, result.Next.ActiveOpponent.HP)
	})

	t.Run("Same opponent name is not a new opponent", func(t *testing.T) {
		cur := baseSession()
		cur.ActiveOpponent = &models.Opponent{Name: "Goblin", HP: 5, MaxHP: 10}

		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "The goblin snarls.",
			EnemyUpdate: &models.EnemyUpdate{
				Name: "Goblin", HP: intPtr(2), MaxHP: intPtr(10),
			},
		})
		assert.False(t, result.NewOpponent)
		assert.False(t, result.Next.Log[len(result.Next.Log)-1].ImagePending)
	})

	t.Run("Duplicate lore titles are dropped case-insensitively", func(t *testing.T) {
		cur := baseSession()

		first := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "You learn of Silverhaven.",
			Lore:  []models.LoreUpdate{{Title: "Silverhaven", Content: "A port city.", Category: "place"}},
		})
		require.Len(t, first.Next.Codex, 1)

		second := Apply(first.Next, "host-id", &models.TurnOutcome{
			Story: "Silverhaven again.",
			Lore:  []models.LoreUpdate{{Title: "SILVERHAVEN", Content: "Different text.", Category: "place"}},
		})
		require.Len(t, second.Next.Codex, 1)
		assert.Equal(t, "Silverhaven", second.Next.Codex[0].Title)
		assert.Equal(t, "place:silverhaven", second.Next.Codex[0].ID)
	})

	t.Run("Turn advancement falls back to rotation with wraparound", func(t *testing.T) {
		cur := baseSession()
		cur.Participants = append(cur.Participants,
			models.Participant{ID: "third-id", Name: "C", HP: 20, MaxHP: 20})
		cur.TurnIndex = 2

		result := Apply(cur, "host-id", &models.TurnOutcome{Story: "Onward."})
		assert.Equal(t, 0, result.Next.TurnIndex)
	})

	t.Run("Out-of-range next_player_index falls back to rotation", func(t *testing.T) {
		cur := baseSession()
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story:           "Onward.",
			NextPlayerIndex: intPtr(7),
		})
		assert.Equal(t, 1, result.Next.TurnIndex)
	})

	t.Run("Roll is attached unrevealed with the actor authorized", func(t *testing.T) {
		cur := baseSession()
		result := Apply(cur, "host-id", &models.TurnOutcome{
			Story: "You attempt to pick the lock.",
			Roll: &models.RollOutcome{
				Skill: "lockpicking", Roll: 14, Modifier: 2, Total: 16,
				DifficultyClass: 12, Success: true,
			},
		})
		entry := result.Next.Log[len(result.Next.Log)-1]
		require.NotNil(t, entry.Roll)
		assert.False(t, entry.Roll.Revealed)
		assert.Equal(t, "host-id", entry.Roll.RollingPlayerID)
		assert.Equal(t, 16, entry.Roll.Total)
	})

	t.Run("No roll placeholder is written when backend omits it", func(t *testing.T) {
		cur := baseSession()
		result := Apply(cur, "host-id", &models.TurnOutcome{Story: "Quiet progress."})
		entry := result.Next.Log[len(result.Next.Log)-1]
		assert.Nil(t, entry.Roll)
	})
}
