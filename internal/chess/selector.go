package chess

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

const (
	captureBonus  = 10.0
	centerWeight  = 6.0
	topCandidates = 3
)

type ScoredMove struct {
	Move  Move
	Score float64
}

// ScoreMove rates m by capture and proximity of the destination to the
// centre. It is a sorting key, not an evaluation.
func ScoreMove(b *Board, m Move) float64 {
	score := 0.0
	target := b.Piece(m.To)
	if !target.IsEmpty() && target.Color != b.Piece(m.From).Color {
		score += captureBonus
	}
	return score + centerScore(m.To)
}

func centerScore(sq Square) float64 {
	dist := math.Abs(float64(sq.Row)-3.5) + math.Abs(float64(sq.Col)-3.5)
	return math.Max(0, centerWeight-dist)
}

// RankMoves scores moves and sorts them best first. Ties keep their
// enumeration order.
func RankMoves(b *Board, moves []Move) []ScoredMove {
	ranked := make([]ScoredMove, len(moves))
	for i, m := range moves {
		ranked[i] = ScoredMove{Move: m, Score: ScoreMove(b, m)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// Selector is the pseudo-engine: it samples uniformly among the few best
// ranked legal moves. It is not safe for concurrent use.
type Selector struct {
	rand *rand.Rand
}

// NewSelector uses r for sampling. A nil r gets a time-seeded source; pass a
// seeded one for a reproducible game.
func NewSelector(r *rand.Rand) *Selector {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{rand: r}
}

// Select picks a move for color.
func (s *Selector) Select(b *Board, color Color) (Move, error) {
	ranked := RankMoves(b, AllLegalMoves(b, color))
	if len(ranked) == 0 {
		return Move{}, ErrNoLegalMoves
	}
	limit := topCandidates
	if limit > len(ranked) {
		limit = len(ranked)
	}
	return ranked[s.rand.Intn(limit)].Move, nil
}
