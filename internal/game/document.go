package game

import (
	"fmt"
	"time"
)

// Document is the flat record a session is persisted and transmitted as.
// The overlapping in_progress / game_over / result fields are all derived
// from the session's single status value when serializing; FromDocument
// rejects records where they disagree instead of trusting any one of them.
type Document struct {
	ID        string            `json:"id"`
	Creator   string            `json:"creator"`
	BoardID   string            `json:"board_id"`
	Players   map[string]string `json:"players"`
	Public    bool              `json:"public"`
	FreeSlots int               `json:"free_slots"`

	TimeControls  *float64            `json:"time_controls"`
	Increment     *float64            `json:"increment"`
	RemainingTime map[string]*float64 `json:"remaining_time"`
	LastMoveAt    *int64              `json:"last_move_at"`

	Resigned   map[string]bool         `json:"resigned"`
	DrawOffers map[string]DrawOfferDoc `json:"draw_offers"`

	InProgress bool        `json:"in_progress"`
	Result     string      `json:"result"`
	GameOver   GameOverDoc `json:"game_over"`

	Turn      string       `json:"turn"`
	PlyCount  int          `json:"ply_count"`
	MoveCount int          `json:"move_count"`
	PGN       string       `json:"pgn"`
	History   []HistoryDoc `json:"history"`
	FEN       string       `json:"fen"`

	InitialFEN       string            `json:"initial_fen"`
	InitialPositions map[string]string `json:"initial_positions"`
}

type DrawOfferDoc struct {
	Made     bool `json:"made"`
	Accepted bool `json:"accepted"`
}

type GameOverDoc struct {
	GameOver bool    `json:"game_over"`
	Reason   *string `json:"reason"`
}

type HistoryDoc struct {
	SAN string `json:"san"`
	FEN string `json:"fen"`
}

// ToDocument flattens a session into its persisted form.
func ToDocument(s *Session) *Document {
	d := &Document{
		ID:        s.ID,
		Creator:   s.Creator,
		BoardID:   s.BoardID,
		Public:    s.Public,
		FreeSlots: s.FreeSlots,
		Players: map[string]string{
			string(White): s.Players[White].Token(),
			string(Black): s.Players[Black].Token(),
		},
		Resigned: map[string]bool{
			string(White): s.Resigned[White],
			string(Black): s.Resigned[Black],
		},
		DrawOffers: map[string]DrawOfferDoc{
			string(White): {Made: s.DrawOffers[White].Made, Accepted: s.DrawOffers[White].Accepted},
			string(Black): {Made: s.DrawOffers[Black].Made, Accepted: s.DrawOffers[Black].Accepted},
		},
		RemainingTime: map[string]*float64{string(White): nil, string(Black): nil},

		InProgress: s.Status.Phase == PhaseInProgress,
		Result:     string(s.Status.Result),

		Turn:      string(s.Turn),
		PlyCount:  s.PlyCount,
		MoveCount: s.MoveCount(),
		PGN:       Movetext(s.History),
		History:   make([]HistoryDoc, 0, len(s.History)),
		FEN:       s.CurrentFEN(),

		InitialFEN:       s.InitialFEN,
		InitialPositions: copyStringMap(s.InitialPositions),
	}

	if s.Status.Phase == PhaseOver {
		reason := string(s.Status.Reason)
		d.GameOver = GameOverDoc{GameOver: true, Reason: &reason}
	}

	if !s.Clock.Untimed() {
		d.TimeControls = secondsPtr(s.Clock.Allowance)
		d.Increment = secondsPtr(s.Clock.Increment)
		for _, side := range []Color{White, Black} {
			v := s.Clock.Remaining[side].Seconds()
			d.RemainingTime[string(side)] = &v
		}
		if !s.Clock.LastMoveAt.IsZero() {
			ms := s.Clock.LastMoveAt.UnixMilli()
			d.LastMoveAt = &ms
		}
	}

	for _, h := range s.History {
		d.History = append(d.History, HistoryDoc{SAN: h.SAN, FEN: h.FEN})
	}
	return d
}

// FromDocument validates d and rebuilds the session. Any inconsistency — a
// missing side key, a history that does not replay to the stored position,
// redundant status fields that disagree — is ErrMalformedDocument; nothing is
// silently defaulted.
func FromDocument(d *Document) (*Session, error) {
	if d == nil {
		return nil, ErrMalformedDocument
	}
	if err := requireSides("players", len(d.Players), d.Players[string(White)], d.Players[string(Black)]); err != nil {
		return nil, err
	}
	if len(d.Resigned) != 2 || len(d.DrawOffers) != 2 || len(d.RemainingTime) != 2 {
		return nil, fmt.Errorf("%w: per-side maps must carry exactly w and b", ErrMalformedDocument)
	}
	turn := Color(d.Turn)
	if !turn.Valid() {
		return nil, fmt.Errorf("%w: turn %q", ErrMalformedDocument, d.Turn)
	}

	s := &Session{
		ID:      d.ID,
		Creator: d.Creator,
		Public:  d.Public,
		BoardID: d.BoardID,
		Players: map[Color]Slot{
			White: ParseSlot(d.Players[string(White)]),
			Black: ParseSlot(d.Players[string(Black)]),
		},
		FreeSlots: d.FreeSlots,
		Turn:      turn,

		InitialFEN: d.InitialFEN,
		PlyCount:   d.PlyCount,

		Resigned: map[Color]bool{
			White: d.Resigned[string(White)],
			Black: d.Resigned[string(Black)],
		},
		DrawOffers: map[Color]DrawOffer{
			White: {Made: d.DrawOffers[string(White)].Made, Accepted: d.DrawOffers[string(White)].Accepted},
			Black: {Made: d.DrawOffers[string(Black)].Made, Accepted: d.DrawOffers[string(Black)].Accepted},
		},
		InitialPositions: copyStringMap(d.InitialPositions),
	}

	if s.InitialFEN == "" {
		// Legacy records carry only the current position.
		if len(d.History) == 0 {
			s.InitialFEN = d.FEN
		} else {
			s.InitialFEN = StartingFEN
		}
	}

	if err := rebuildHistory(s, d); err != nil {
		return nil, err
	}
	if err := rebuildClock(s, d); err != nil {
		return nil, err
	}
	if err := rebuildStatus(s, d); err != nil {
		return nil, err
	}

	if s.FreeSlots != countOpen(s.Players) {
		return nil, fmt.Errorf("%w: free_slots %d does not match open slots", ErrMalformedDocument, s.FreeSlots)
	}
	if s.Players[White].IsAI() && s.Players[Black].IsAI() {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, ErrTwoAIPlayers)
	}
	if d.PGN != Movetext(s.History) {
		return nil, fmt.Errorf("%w: pgn does not match history", ErrMalformedDocument)
	}
	if d.MoveCount != s.MoveCount() {
		return nil, fmt.Errorf("%w: move_count %d for ply_count %d", ErrMalformedDocument, d.MoveCount, d.PlyCount)
	}
	return s, nil
}

func rebuildHistory(s *Session, d *Document) error {
	if d.PlyCount != len(d.History) {
		return fmt.Errorf("%w: ply_count %d but %d history entries", ErrMalformedDocument, d.PlyCount, len(d.History))
	}

	g, err := newGameFromFEN(s.InitialFEN)
	if err != nil {
		return err
	}
	s.History = make([]HistoryEntry, 0, len(d.History))
	for i, h := range d.History {
		if err := pushSAN(g, h.SAN); err != nil {
			return fmt.Errorf("%w: history move %d (%s) does not apply", ErrMalformedDocument, i+1, h.SAN)
		}
		if g.FEN() != h.FEN {
			return fmt.Errorf("%w: history move %d (%s) yields %q, record says %q", ErrMalformedDocument, i+1, h.SAN, g.FEN(), h.FEN)
		}
		s.History = append(s.History, HistoryEntry{SAN: h.SAN, FEN: h.FEN})
	}
	if g.FEN() != d.FEN {
		return fmt.Errorf("%w: fen %q does not match replayed position %q", ErrMalformedDocument, d.FEN, g.FEN())
	}
	if fenTurn(d.FEN) != s.Turn {
		return fmt.Errorf("%w: turn %q disagrees with fen", ErrMalformedDocument, s.Turn)
	}
	return nil
}

func rebuildClock(s *Session, d *Document) error {
	if d.TimeControls == nil {
		if d.RemainingTime[string(White)] != nil || d.RemainingTime[string(Black)] != nil || d.Increment != nil || d.LastMoveAt != nil {
			return fmt.Errorf("%w: untimed game carries clock state", ErrMalformedDocument)
		}
		s.Clock = Clock{}
		return nil
	}
	if *d.TimeControls < 0 {
		return fmt.Errorf("%w: %v", ErrMalformedDocument, ErrNegativeTime)
	}

	s.Clock = Clock{Remaining: map[Color]time.Duration{}}
	if d.Increment != nil {
		if *d.Increment < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedDocument, ErrNegativeTime)
		}
		s.Clock.Increment = secondsToDuration(*d.Increment)
	}
	for _, side := range []Color{White, Black} {
		v := d.RemainingTime[string(side)]
		if v == nil {
			return fmt.Errorf("%w: timed game missing remaining_time for %s", ErrMalformedDocument, side)
		}
		s.Clock.Remaining[side] = secondsToDuration(*v)
	}
	if d.LastMoveAt != nil {
		s.Clock.LastMoveAt = time.UnixMilli(*d.LastMoveAt).UTC()
	}
	s.Clock.Allowance = secondsToDuration(*d.TimeControls)
	return nil
}

func rebuildStatus(s *Session, d *Document) error {
	result := Result(d.Result)
	switch result {
	case ResultWhiteWins, ResultBlackWins, ResultDraw, ResultUndetermined:
	default:
		return fmt.Errorf("%w: result %q", ErrMalformedDocument, d.Result)
	}

	if d.GameOver.GameOver {
		if d.InProgress {
			return fmt.Errorf("%w: in_progress and game_over both set", ErrMalformedDocument)
		}
		if d.GameOver.Reason == nil {
			return fmt.Errorf("%w: game over without a reason", ErrMalformedDocument)
		}
		reason := Reason(*d.GameOver.Reason)
		if !reason.Valid() {
			return fmt.Errorf("%w: reason %q", ErrMalformedDocument, *d.GameOver.Reason)
		}
		if result == ResultUndetermined {
			return fmt.Errorf("%w: finished game with undetermined result", ErrMalformedDocument)
		}
		if drawReason(reason) != (result == ResultDraw) {
			return fmt.Errorf("%w: reason %q disagrees with result %q", ErrMalformedDocument, reason, result)
		}
		if d.FreeSlots != 0 {
			return fmt.Errorf("%w: finished game with open slots", ErrMalformedDocument)
		}
		s.Status = over(reason, result)
	} else {
		if d.GameOver.Reason != nil {
			return fmt.Errorf("%w: reason set on a live game", ErrMalformedDocument)
		}
		if result != ResultUndetermined {
			return fmt.Errorf("%w: live game with result %q", ErrMalformedDocument, result)
		}
		if d.InProgress != (d.FreeSlots == 0) {
			return fmt.Errorf("%w: in_progress disagrees with free_slots", ErrMalformedDocument)
		}
		if d.InProgress {
			s.Status = inProgress()
		} else {
			s.Status = waiting()
		}
	}

	for _, side := range []Color{White, Black} {
		if s.DrawOffers[side].Accepted && s.Status.Reason != ReasonDrawAccepted {
			return fmt.Errorf("%w: accepted draw offer on a game not ended by agreement", ErrMalformedDocument)
		}
		if s.Resigned[side] {
			if s.Status.Reason != ReasonResignation || s.Status.Result != winFor(side.Other()) {
				return fmt.Errorf("%w: resignation flag disagrees with status", ErrMalformedDocument)
			}
		}
	}
	return nil
}

func drawReason(r Reason) bool {
	switch r {
	case ReasonStalemate, ReasonDrawByRule, ReasonDrawAccepted:
		return true
	}
	return false
}

func requireSides(field string, n int, w, b string) error {
	if n != 2 || w == "" || b == "" {
		return fmt.Errorf("%w: %s must carry exactly w and b", ErrMalformedDocument, field)
	}
	return nil
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func secondsPtr(d time.Duration) *float64 {
	v := d.Seconds()
	return &v
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
