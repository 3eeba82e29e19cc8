package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/robochess/server/internal/game"
)

// Repository archives finished games in Postgres. Writing is best-effort:
// callers log failures and keep serving.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
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
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveFinished upserts the final record for a completed game.
func (r *Repository) SaveFinished(ctx context.Context, s *game.Session, finishedAt time.Time) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	if s.Status.Phase != game.PhaseOver {
		return nil
	}

	historyRaw, err := json.Marshal(s.History)
	if err != nil {
		return err
	}
	pgn := BuildPGN(s, finishedAt)

	q := `INSERT INTO games (
	    game_id, creator, board_id, white, black,
	    result, reason, ply_count, fen, history, pgn, finished_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    creator=EXCLUDED.creator,
	    board_id=EXCLUDED.board_id,
	    white=EXCLUDED.white,
	    black=EXCLUDED.black,
	    result=EXCLUDED.result,
	    reason=EXCLUDED.reason,
	    ply_count=EXCLUDED.ply_count,
	    fen=EXCLUDED.fen,
	    history=EXCLUDED.history,
	    pgn=EXCLUDED.pgn,
	    finished_at=EXCLUDED.finished_at`

	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.Creator, s.BoardID,
		s.Players[game.White].Token(), s.Players[game.Black].Token(),
		string(s.Status.Result), string(s.Status.Reason),
		s.PlyCount, s.CurrentFEN(), string(historyRaw), pgn, finishedAt,
	)
	return err
}

// BuildPGN renders a tagged PGN for the session: standard headers, the
// numbered movetext and the result token.
func BuildPGN(s *game.Session, date time.Time) string {
	if s == nil {
		return ""
	}
	if date.IsZero() {
		date = time.Now()
	}

	var b strings.Builder
	b.WriteString("[Event \"Robochess\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(s.Players[game.White].Token())))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(s.Players[game.Black].Token())))
	if s.Status.Reason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(s.Status.Reason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", s.Status.Result))

	if movetext := game.Movetext(s.History); movetext != "" {
		b.WriteString(movetext)
		b.WriteString(" ")
	}
	b.WriteString(string(s.Status.Result))
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
