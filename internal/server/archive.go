package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/lox/borsa/internal/fileutil"
	"github.com/lox/borsa/internal/game"
)

// ArchiveRecord is the summary written for every finished game.
type ArchiveRecord struct {
	Code      string          `json:"code"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   time.Time       `json:"endedAt"`
	Rounds    int             `json:"rounds"`
	Standings []game.Standing `json:"standings"`
	Log       []game.LogEntry `json:"log"`
}

// newArchiveRecord copies what is worth keeping out of a finished room.
// The caller must hold the room.
func newArchiveRecord(room *game.Room) *ArchiveRecord {
	standings := make([]game.Standing, len(room.Standings))
	copy(standings, room.Standings)

	return &ArchiveRecord{
		Code:      room.Code,
		StartedAt: room.StartedAt,
		EndedAt:   room.EndedAt,
		Rounds:    room.Round,
		Standings: standings,
		Log:       room.Log().Recent(room.Log().Len()),
	}
}

// archivePath names the file a record is written to.
func archivePath(dir string, rec *ArchiveRecord) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d.json", rec.Code, rec.EndedAt.UnixMilli()))
}

// archive writes rec to the archive directory, if one is configured.
// Failures are logged and never reach players.
func (s *Server) archive(rec *ArchiveRecord) {
	if s.opts.ArchiveDir == "" {
		return
	}

	path := archivePath(s.opts.ArchiveDir, rec)
	if err := fileutil.WriteJSONAtomic(path, rec, 0o644); err != nil {
		s.logger.Error("Failed to archive game", "code", rec.Code, "path", path, "error", err)
		return
	}
	s.logger.Info("Archived game", "code", rec.Code, "path", path)
}
