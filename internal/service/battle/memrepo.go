package battle

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/battle-chess/internal/domain"
)

// memrepo is a development-only in-memory repository used when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID      map[int64]*domain.BattleGame
	gamesBySession map[string]*domain.BattleGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:      make(map[int64]*domain.BattleGame),
		gamesBySession: make(map[string]*domain.BattleGame),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.BattleGame) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesBySession[game.SessionUUID]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	cp := cloneGame(game)
	cp.ID = m.nextID
	m.gamesByID[cp.ID] = cp
	m.gamesBySession[cp.SessionUUID] = cp
	return cp.ID, nil
}

func (m *memrepo) GetGame(ctx context.Context, id int64) (*domain.BattleGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesByID[id]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.BattleGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g, ok := m.gamesBySession[sessionUUID]; ok {
		return cloneGame(g), nil
	}
	return nil, nil
}

func (m *memrepo) RecentGames(ctx context.Context, limit int) ([]*domain.BattleGame, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	games := make([]*domain.BattleGame, 0, len(m.gamesByID))
	for _, g := range m.gamesByID {
		games = append(games, cloneGame(g))
	}
	m.mu.RUnlock()

	sort.Slice(games, func(i, j int) bool {
		if games[i].EndedAt.Equal(games[j].EndedAt) {
			return games[i].ID > games[j].ID
		}
		return games[i].EndedAt.After(games[j].EndedAt)
	})
	if len(games) > limit {
		games = games[:limit]
	}
	return games, nil
}

func (m *memrepo) Close() error { return nil }

func cloneGame(g *domain.BattleGame) *domain.BattleGame {
	cp := *g
	cp.MovesUCI = append([]string(nil), g.MovesUCI...)
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &cp
}
