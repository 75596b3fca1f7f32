package battle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/battle-chess/internal/domain"
)

func sampleGame(session string, ended time.Time) *domain.BattleGame {
	return &domain.BattleGame{
		SessionUUID:  session,
		White:        "engine",
		Black:        "human",
		Result:       "1-0",
		ResultMethod: "king_captured",
		MovesUCI:     []string{"e2e4"},
		MovesSAN:     []string{"e4"},
		PGN:          "1. e4 1-0",
		StartedAt:    ended.Add(-time.Minute),
		EndedAt:      ended,
		Duration:     time.Minute,
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleGame("a", base)
	id, err := repo.InsertGame(ctx, first)
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if _, err := repo.InsertGame(ctx, sampleGame("a", base)); !errors.Is(err, ErrDuplicateGame) {
		t.Errorf("duplicate err = %v, want ErrDuplicateGame", err)
	}
	if _, err := repo.InsertGame(ctx, sampleGame("b", base.Add(time.Hour))); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}

	got, err := repo.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	first.ID = id
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("GetGame mismatch (-want +got):\n%s", diff)
	}
	// returned games are copies
	got.MovesUCI[0] = "a2a3"
	again, _ := repo.GetGameBySession(ctx, "a")
	if again.MovesUCI[0] != "e2e4" {
		t.Errorf("stored game mutated through a returned copy")
	}

	if missing, err := repo.GetGame(ctx, 404); missing != nil || err != nil {
		t.Errorf("GetGame(404) = %v, %v", missing, err)
	}

	recent, err := repo.RecentGames(ctx, 1)
	if err != nil {
		t.Fatalf("RecentGames: %v", err)
	}
	if len(recent) != 1 || recent[0].SessionUUID != "b" {
		t.Errorf("recent = %+v", recent)
	}
}
