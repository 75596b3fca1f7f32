package battle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/battle-chess/internal/domain"
)

var ErrDuplicateGame = errors.New("battle game already archived")

// Repository archives finished battles.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.BattleGame) (int64, error)
	GetGame(ctx context.Context, id int64) (*domain.BattleGame, error)
	GetGameBySession(ctx context.Context, sessionUUID string) (*domain.BattleGame, error)
	RecentGames(ctx context.Context, limit int) ([]*domain.BattleGame, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS battle_games (
	id            BIGSERIAL PRIMARY KEY,
	session_uuid  TEXT NOT NULL UNIQUE,
	white         TEXT NOT NULL,
	black         TEXT NOT NULL,
	result        TEXT NOT NULL,
	result_method TEXT NOT NULL,
	moves_uci     JSONB NOT NULL,
	moves_san     JSONB NOT NULL,
	pgn           TEXT NOT NULL,
	final_fen     TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT
)`

const selectColumns = `
	id,
	session_uuid,
	white,
	black,
	result,
	result_method,
	moves_uci,
	moves_san,
	pgn,
	final_fen,
	started_at,
	ended_at,
	duration_ms`

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// OpenRepository connects to postgres and makes sure the table exists.
func OpenRepository(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create battle_games: %w", err)
	}
	return NewRepository(db), nil
}

func (r *repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *repository) InsertGame(ctx context.Context, game *domain.BattleGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil battle game payload")
	}
	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO battle_games (
			session_uuid,
			white,
			black,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			final_fen,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.SessionUUID,
		game.White,
		game.Black,
		game.Result,
		game.ResultMethod,
		movesUCI,
		movesSAN,
		game.PGN,
		game.FinalFEN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert battle game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*domain.BattleGame, error) {
	query := `SELECT` + selectColumns + ` FROM battle_games WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *repository) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.BattleGame, error) {
	query := `SELECT` + selectColumns + ` FROM battle_games WHERE session_uuid = $1`
	return r.getOne(ctx, query, sessionUUID)
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (*domain.BattleGame, error) {
	game, err := scanGame(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select battle game: %w", err)
	}
	return game, nil
}

func (r *repository) RecentGames(ctx context.Context, limit int) ([]*domain.BattleGame, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + selectColumns + ` FROM battle_games ORDER BY ended_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select battle games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.BattleGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.BattleGame, error) {
	var (
		game         domain.BattleGame
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.SessionUUID,
		&game.White,
		&game.Black,
		&game.Result,
		&game.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.FinalFEN,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	); err != nil {
		return nil, err
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}
