package game

import (
	"time"
)

// Session is the aggregate game entity. Every mutating operation validates
// first, then clones and mutates the clone, so a failed call can never leave
// a partially updated session behind.
type Session struct {
	ID      string
	Creator string
	Public  bool
	BoardID string

	Players   map[Color]Slot
	FreeSlots int

	Turn       Color
	InitialFEN string
	History    []HistoryEntry
	PlyCount   int

	Clock      Clock
	DrawOffers map[Color]DrawOffer
	Resigned   map[Color]bool
	Status     Status

	// InitialPositions maps each piece's home square to its physical square
	// on the robotic board. Opaque to the rules; carried for the controller.
	InitialPositions map[string]string
}

// Params configures session creation. White and Black may be open, AI, or a
// concrete player id; at most one side may be AI.
type Params struct {
	ID            string
	Creator       string
	White, Black  Slot
	TimePerPlayer time.Duration
	Increment     time.Duration
	BoardID       string
	Public        bool
}

// NewSession validates p and builds a fresh session at the standard starting
// position.
func NewSession(p Params) (*Session, error) {
	if p.White.IsAI() && p.Black.IsAI() {
		return nil, ErrTwoAIPlayers
	}
	if p.TimePerPlayer < 0 || p.Increment < 0 {
		return nil, ErrNegativeTime
	}

	s := &Session{
		ID:      p.ID,
		Creator: p.Creator,
		Public:  p.Public,
		BoardID: p.BoardID,
		Players: map[Color]Slot{White: p.White, Black: p.Black},
		Turn:    White,

		InitialFEN: StartingFEN,
		Clock:      NewClock(p.TimePerPlayer, p.Increment),
		DrawOffers: map[Color]DrawOffer{White: {}, Black: {}},
		Resigned:   map[Color]bool{White: false, Black: false},

		InitialPositions: homeSquares(),
	}
	s.FreeSlots = countOpen(s.Players)
	if s.FreeSlots == 0 {
		s.Status = inProgress()
	} else {
		s.Status = waiting()
	}
	return s, nil
}

// Join fills an open slot with playerID. The reserved slot tokens are not
// player ids: a session carrying PlayerSlot("OPEN") would serialize to the
// same token an open slot reads back as.
func (s *Session) Join(side Color, playerID string) (*Session, error) {
	if !side.Valid() {
		return nil, ErrSlotNotOpen
	}
	if ReservedSlotToken(playerID) {
		return nil, ErrReservedPlayerID
	}
	if !s.Players[side].IsOpen() {
		return nil, ErrSlotNotOpen
	}

	next := s.clone()
	next.Players[side] = PlayerSlot(playerID)
	next.FreeSlots--
	if next.FreeSlots == 0 {
		next.Status = inProgress()
	}
	return next, nil
}

// Move applies a SAN move for moverID at wall-clock instant now.
//
// The report's Applied field is false when the mover's clock was already
// exhausted: the returned session is then a timeout loss for the mover and
// the notation is never applied, regardless of its legality.
func (s *Session) Move(moverID, notation string, now time.Time) (*Session, *MoveReport, error) {
	if s.Status.Phase != PhaseInProgress {
		return nil, nil, ErrGameNotInProgress
	}
	if !s.Players[s.Turn].Matches(moverID) {
		return nil, nil, ErrNotPlayersTurn
	}

	if s.Clock.IsExpired(s.Turn, now) {
		next := s.clone()
		next.Status = over(ReasonTimeout, winFor(s.Turn.Other()))
		return next, &MoveReport{Applied: false}, nil
	}

	g, err := replay(s.InitialFEN, s.History)
	if err != nil {
		return nil, nil, err
	}
	san, fen, outcome, err := applyNotation(g, notation)
	if err != nil {
		return nil, nil, err
	}

	mover := s.Turn
	next := s.clone()
	next.History = append(next.History, HistoryEntry{SAN: san, FEN: fen})
	next.PlyCount++
	next.Clock = next.Clock.Debit(mover, now)
	// A move implicitly withdraws any pending draw offer.
	next.DrawOffers = map[Color]DrawOffer{White: {}, Black: {}}
	next.Turn = mover.Other()

	switch outcome {
	case OutcomeCheckmate:
		next.Status = over(ReasonCheckmate, winFor(mover))
	case OutcomeStalemate:
		next.Status = over(ReasonStalemate, ResultDraw)
	case OutcomeFiftyMove, OutcomeInsufficientMaterial, OutcomeRepetition:
		next.Status = over(ReasonDrawByRule, ResultDraw)
	}

	return next, &MoveReport{Applied: true, SAN: san, Outcome: outcome}, nil
}

// OfferDraw records a draw offer from userID's side.
func (s *Session) OfferDraw(userID string) (*Session, error) {
	if s.Status.Phase != PhaseInProgress {
		return nil, ErrGameNotInProgress
	}
	side, ok := s.sideOf(userID)
	if !ok {
		return nil, ErrUserNotInGame
	}
	if s.DrawOffers[side].Made {
		return nil, ErrDrawOfferAlreadyMade
	}

	next := s.clone()
	next.DrawOffers[side] = DrawOffer{Made: true}
	return next, nil
}

// RespondToOffer accepts or declines the outstanding draw offer directed at
// userID (the player opposite the offering side).
func (s *Session) RespondToOffer(userID string, accept bool) (*Session, error) {
	if s.Status.Phase != PhaseInProgress {
		return nil, ErrGameNotInProgress
	}
	side, ok := s.sideOf(userID)
	if !ok {
		return nil, ErrUserNotInGame
	}
	offering := side.Other()
	if !s.DrawOffers[offering].Made {
		return nil, ErrNothingToRespondTo
	}

	next := s.clone()
	if accept {
		next.DrawOffers[offering] = DrawOffer{Made: true, Accepted: true}
		next.Status = over(ReasonDrawAccepted, ResultDraw)
	} else {
		next.DrawOffers[offering] = DrawOffer{}
	}
	return next, nil
}

// Resign ends the game as a loss for userID's side.
func (s *Session) Resign(userID string) (*Session, error) {
	if s.Status.Phase != PhaseInProgress {
		return nil, ErrGameNotInProgress
	}
	side, ok := s.sideOf(userID)
	if !ok {
		return nil, ErrUserNotInGame
	}

	next := s.clone()
	next.Resigned[side] = true
	next.Status = over(ReasonResignation, winFor(side.Other()))
	return next, nil
}

// CurrentFEN is the FEN of the latest position.
func (s *Session) CurrentFEN() string {
	if n := len(s.History); n > 0 {
		return s.History[n-1].FEN
	}
	return s.InitialFEN
}

// MoveCount is the full-move number derived from the ply count.
func (s *Session) MoveCount() int { return s.PlyCount/2 + 1 }

// PlayerOn returns the side occupied by userID, if any. AI slots answer to
// the designated "AI" identity.
func (s *Session) PlayerOn(userID string) (Color, bool) { return s.sideOf(userID) }

func (s *Session) sideOf(userID string) (Color, bool) {
	for _, side := range []Color{White, Black} {
		if s.Players[side].Matches(userID) {
			return side, true
		}
	}
	return "", false
}

func (s *Session) clone() *Session {
	next := *s

	next.Players = map[Color]Slot{White: s.Players[White], Black: s.Players[Black]}
	next.DrawOffers = map[Color]DrawOffer{White: s.DrawOffers[White], Black: s.DrawOffers[Black]}
	next.Resigned = map[Color]bool{White: s.Resigned[White], Black: s.Resigned[Black]}
	next.Clock = s.Clock.clone()

	next.History = make([]HistoryEntry, len(s.History))
	copy(next.History, s.History)

	next.InitialPositions = make(map[string]string, len(s.InitialPositions))
	for k, v := range s.InitialPositions {
		next.InitialPositions[k] = v
	}
	return &next
}

func countOpen(players map[Color]Slot) int {
	n := 0
	for _, sl := range players {
		if sl.IsOpen() {
			n++
		}
	}
	return n
}

// homeSquares is the identity placement of the 32 pieces, keyed by their
// starting squares on ranks 1, 2, 7 and 8.
func homeSquares() map[string]string {
	m := make(map[string]string, 32)
	for f := 'a'; f <= 'h'; f++ {
		for _, r := range []byte{'1', '2', '7', '8'} {
			sq := string(f) + string(r)
			m[sq] = sq
		}
	}
	return m
}
