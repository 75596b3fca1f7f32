package chess

import "testing"

func TestNotation(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		move string
		want string
	}{
		{"pawn push", InitialFEN, "e2e4", "e4"},
		{"knight development", InitialFEN, "b1a3", "Na3"},
		{"black knight", InitialFEN, "g8f6", "Nf6"},
		{"pawn capture uses origin file", "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1", "e4d5", "exd5"},
		{"piece capture uses letter", "4k3/5p2/8/6N1/8/8/8/4K3 w - - 0 1", "g5f7", "Nxf7"},
		{"queen capture", "4k3/8/8/8/8/8/3n4/3QK3 w - - 0 1", "d1d2", "Qxd2"},
		{"king step", "4k3/8/8/8/8/8/8/4K3 w - - 0 1", "e1f2", "Kf2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := mustFEN(t, tt.fen)
			m, err := ParseMove(tt.move)
			if err != nil {
				t.Fatalf("ParseMove: %v", err)
			}
			if got := Notation(&b, m); got != tt.want {
				t.Errorf("Notation(%s) = %q, want %q", tt.move, got, tt.want)
			}
		})
	}
}

func TestNotationIgnoresCheck(t *testing.T) {
	b, _ := mustFEN(t, "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1")
	m, _ := ParseMove("a1a8")
	if got := Notation(&b, m); got != "Ra8" {
		t.Errorf("Notation = %q, want Ra8", got)
	}
}
