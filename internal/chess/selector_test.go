package chess

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRankMovesInitialPosition(t *testing.T) {
	b := InitialBoard()
	ranked := RankMoves(&b, AllLegalMoves(&b, White))
	if len(ranked) != 20 {
		t.Fatalf("ranked %d moves, want 20", len(ranked))
	}
	var top []string
	for _, sm := range ranked[:3] {
		top = append(top, sm.Move.String())
	}
	if diff := cmp.Diff([]string{"d2d4", "e2e4", "c2c4"}, top); diff != "" {
		t.Errorf("top moves mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Fatalf("ranking not descending at %d", i)
		}
	}
}

func TestScoreMovePrefersCaptures(t *testing.T) {
	b, _ := mustFEN(t, "4k3/8/8/8/8/8/p7/R3K3 w - - 0 1")
	capture := ScoreMove(&b, Move{From: sq(t, "a1"), To: sq(t, "a2")})
	center := ScoreMove(&b, Move{From: sq(t, "a1"), To: sq(t, "d1")})
	if capture <= center {
		t.Errorf("capture score %.1f should beat quiet score %.1f", capture, center)
	}
	if got := centerScore(sq(t, "a8")); got != 0 {
		t.Errorf("corner centre score = %.1f, want 0", got)
	}
	if got := centerScore(sq(t, "e4")); got != 5 {
		t.Errorf("e4 centre score = %.1f, want 5", got)
	}
}

func TestSelectStaysInTopCandidates(t *testing.T) {
	b := InitialBoard()
	s := NewSelector(rand.New(rand.NewSource(42)))
	allowed := map[string]bool{"d2d4": true, "e2e4": true, "c2c4": true}
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		m, err := s.Select(&b, White)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if !allowed[m.String()] {
			t.Fatalf("Select picked %s outside the top three", m)
		}
		seen[m.String()]++
	}
	if len(seen) != 3 {
		t.Errorf("expected all three candidates to be sampled, got %v", seen)
	}
}

func TestSelectFewerThanThreeMoves(t *testing.T) {
	// only the king can move, and only to a2 or b1
	b, _ := mustFEN(t, "8/8/8/8/8/2k5/8/K7 w - - 0 1")
	s := NewSelector(nil)
	for i := 0; i < 50; i++ {
		m, err := s.Select(&b, White)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if got := m.String(); got != "a1a2" && got != "a1b1" {
			t.Fatalf("Select = %s", got)
		}
	}
}

func TestSelectNoMoves(t *testing.T) {
	b, _ := mustFEN(t, "7k/5K2/6Q1/8/8/8/8/8 b - - 0 1")
	if _, err := NewSelector(nil).Select(&b, Black); !errors.Is(err, ErrNoLegalMoves) {
		t.Errorf("Select err = %v, want ErrNoLegalMoves", err)
	}
}
