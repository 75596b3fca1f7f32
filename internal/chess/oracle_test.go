package chess

import (
	"sort"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/dylhunn/dragontoothmg"
	"github.com/google/go-cmp/cmp"
)

func sortedLegalMoves(t *testing.T, fen string) []string {
	t.Helper()
	b, turn := mustFEN(t, fen)
	var out []string
	for _, m := range AllLegalMoves(&b, turn) {
		out = append(out, m.String())
	}
	sort.Strings(out)
	return out
}

// The positions have no castling rights, no en passant target and no pawn one
// step from promotion, so a full rules implementation produces exactly our
// move list.
func TestLegalMovesAgreeWithCorentings(t *testing.T) {
	for _, fen := range samplePositions {
		t.Run(fen, func(t *testing.T) {
			got := sortedLegalMoves(t, fen)

			opt, err := nchess.FEN(fen)
			if err != nil {
				t.Fatalf("reference FEN: %v", err)
			}
			game := nchess.NewGame(opt)
			var want []string
			for _, mv := range game.ValidMoves() {
				want = append(want, mv.S1().String()+mv.S2().String())
			}
			sort.Strings(want)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("legal moves mismatch (-reference +ours):\n%s", diff)
			}
		})
	}
}

func TestLegalMovesAgreeWithDragontooth(t *testing.T) {
	for _, fen := range samplePositions {
		t.Run(fen, func(t *testing.T) {
			got := sortedLegalMoves(t, fen)

			board := dragontoothmg.ParseFen(fen)
			var want []string
			for _, mv := range board.GenerateLegalMoves() {
				want = append(want, mv.String())
			}
			sort.Strings(want)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("legal moves mismatch (-reference +ours):\n%s", diff)
			}
		})
	}
}
