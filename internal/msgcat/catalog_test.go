package msgcat

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedStatusMessages(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		key  string
		data any
		want string
	}{
		{"status.ready", nil, "Battle Ready"},
		{"status.in_progress", nil, "Battle in progress"},
		{"status.paused", nil, "Battle Paused"},
		{"status.thinking", map[string]string{"Side": "White"}, "White engine thinking..."},
		{"status.checkmate", map[string]string{"Winner": "Black"}, "Black wins by checkmate!"},
		{"status.king_captured", map[string]string{"Winner": "White"}, "White wins!"},
		{"status.stalemate", nil, "Stalemate!"},
		{"status.timeout", map[string]string{"Winner": "White"}, "White wins on time!"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := c.Render(tt.key, tt.data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestRenderErrors(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Render("status.nope", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown key err = %v, want ErrNotFound", err)
	}
	if _, err := c.Render("status.thinking", map[string]string{}); err == nil {
		t.Errorf("missing template field should fail")
	}
	if !c.Has("status.ready") || c.Has("status") {
		t.Errorf("Has reports wrong keys")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.yaml", "status:\n  ready: \"Ready to fight\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, _ := c.Render("status.ready", nil); got != "Ready to fight" {
		t.Errorf("override not applied: %q", got)
	}
	if got, _ := c.Render("status.paused", nil); got != "Battle Paused" {
		t.Errorf("default lost: %q", got)
	}

	write("b.yml", "status:\n  ready: \"Again\"\n")
	if _, err := New(dir); err == nil {
		t.Errorf("duplicate override keys should fail")
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("status:\n  ready: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Errorf("numeric leaf should be rejected")
	}
}
