// Package archive persists finished-game results. The coordinator
// records through the Recorder interface; deployments without a
// database fall back to the in-memory recorder.
package archive

import (
	"context"
	"time"
)

// Result is one finished game.
type Result struct {
	RoomID     string
	Outcome    string
	Winner     string
	MoveCount  int
	FinishedAt time.Time
}

// Recorder stores game results.
type Recorder interface {
	SaveResult(ctx context.Context, res Result) error
}
