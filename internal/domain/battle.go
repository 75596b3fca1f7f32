package domain

import "time"

// BattleGame is a finished battle as archived.
type BattleGame struct {
	ID           int64
	SessionUUID  string
	White        string
	Black        string
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	FinalFEN     string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}
