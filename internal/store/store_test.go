package store

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/park285/battle-chess/internal/chess"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rdb, ttl)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleRecord(id string, moves ...string) *SessionRecord {
	return &SessionRecord{
		ID:          id,
		Moves:       moves,
		ClockMillis: 600000,
		WhiteMillis: 590000,
		BlackMillis: 595000,
		White:       "engine",
		Black:       "human",
		State:       "paused",
		Outcome:     chess.Ongoing,
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 1, 2, 3, 5, 5, 0, time.UTC),
	}
}

func storesUnderTest(t *testing.T) map[string]Store {
	rs, _ := newTestRedisStore(t, time.Hour)
	return map[string]Store{"redis": rs, "memory": NewMemoryStore()}
}

func TestSaveLoadDelete(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("abc", "e2e4", "e7e5")
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Load(ctx, "abc")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
			ids, err := s.ActiveIDs(ctx)
			if err != nil {
				t.Fatalf("ActiveIDs: %v", err)
			}
			if diff := cmp.Diff([]string{"abc"}, ids); diff != "" {
				t.Errorf("active mismatch (-want +got):\n%s", diff)
			}

			if err := s.Delete(ctx, "abc"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			got, err = s.Load(ctx, "abc")
			if err != nil || got != nil {
				t.Errorf("Load after delete = %+v, %v", got, err)
			}
		})
	}
}

func TestFinishedRecordLeavesActiveIndex(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("done", "f2f3", "e7e5", "g2g4", "d8h4")
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			rec.Outcome = chess.Outcome{Status: chess.StatusBlackWins, Method: chess.MethodCheckmate}
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			ids, err := s.ActiveIDs(ctx)
			if err != nil {
				t.Fatalf("ActiveIDs: %v", err)
			}
			if len(ids) != 0 {
				t.Errorf("finished game still active: %v", ids)
			}
			if got, _ := s.Load(ctx, "done"); got == nil {
				t.Errorf("finished record should still load")
			}
		})
	}
}

func TestSaveRejectsMissingID(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		if err := s.Save(context.Background(), &SessionRecord{}); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("%s: err = %v, want ErrInvalidRecord", name, err)
		}
	}
}

func TestRedisTTLAndIndexPruning(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()
	if err := s.Save(ctx, sampleRecord("ttl", "e2e4")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("battle:session:ttl"); ttl != time.Minute {
		t.Errorf("TTL = %s, want 1m", ttl)
	}
	// expire only the session key; the index entry goes stale
	mr.Del("battle:session:ttl")
	ids, err := s.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("stale ids returned: %v", ids)
	}
	if ok, _ := mr.SIsMember("battle:index:active", "ttl"); ok {
		t.Errorf("stale id not pruned")
	}
}

func TestRedisLoadCorruptRecord(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	if err := mr.Set("battle:session:bad", "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Load(context.Background(), "bad"); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestRecordSessionReplays(t *testing.T) {
	rec := sampleRecord("r", "e2e4", "d7d5", "e4d5")
	s, err := rec.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.Plies() != 3 || s.Turn() != chess.Black {
		t.Errorf("plies=%d turn=%s", s.Plies(), s.Turn())
	}
	if got := s.Clock().Left(chess.White); got != 590*time.Second {
		t.Errorf("white clock = %s", got)
	}
	if got := s.History()[2].Notation; got != "exd5" {
		t.Errorf("notation = %q", got)
	}
}

func TestRecordSessionRestoresTimeout(t *testing.T) {
	rec := sampleRecord("flag", "e2e4")
	rec.BlackMillis = 0
	rec.Outcome = chess.Outcome{Status: chess.StatusWhiteWins, Method: chess.MethodTimeout}
	s, err := rec.Session()
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.Outcome() != rec.Outcome {
		t.Errorf("outcome = %+v, want %+v", s.Outcome(), rec.Outcome)
	}
}

func TestRecordSessionRejectsIllegalMoves(t *testing.T) {
	rec := sampleRecord("x", "e2e4", "e2e4")
	if _, err := rec.Session(); !errors.Is(err, ErrInvalidRecord) || !errors.Is(err, chess.ErrIllegalMove) {
		t.Errorf("err = %v", err)
	}
	if _, err := (*SessionRecord)(nil).Session(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("nil record err = %v", err)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		raw     string
		addr    string
		db      int
		pass    string
		wantErr bool
	}{
		{raw: "redis://localhost:6379/0", addr: "localhost:6379"},
		{raw: "redis://:secret@cache:6380/3", addr: "cache:6380", db: 3, pass: "secret"},
		{raw: "rediss://cache:6380", addr: "cache:6380"},
		{raw: "http://cache:6380", wantErr: true},
		{raw: "redis://cache:6380/x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			opts, err := ParseRedisURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRedisURL: %v", err)
			}
			if opts.Addr != tt.addr || opts.DB != tt.db || opts.Password != tt.pass {
				t.Errorf("opts = %+v", opts)
			}
		})
	}
}
