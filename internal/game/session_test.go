package game

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTimedSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(Params{
		ID:            "g1",
		Creator:       "p1",
		White:         PlayerSlot("p1"),
		Black:         PlayerSlot("p2"),
		TimePerPlayer: 600 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func snapshot(t *testing.T, s *Session) string {
	t.Helper()
	raw, err := json.Marshal(ToDocument(s))
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return string(raw)
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession(Params{White: AISlot(), Black: AISlot()}); !errors.Is(err, ErrTwoAIPlayers) {
		t.Fatalf("expected ErrTwoAIPlayers, got %v", err)
	}
	if _, err := NewSession(Params{White: OpenSlot(), Black: OpenSlot(), TimePerPlayer: -time.Second}); !errors.Is(err, ErrNegativeTime) {
		t.Fatalf("expected ErrNegativeTime, got %v", err)
	}
}

func TestOpeningMove(t *testing.T) {
	s := newTimedSession(t)
	now := time.Now()

	if _, _, err := s.Move("p2", "e4", now); !errors.Is(err, ErrNotPlayersTurn) {
		t.Fatalf("black moving first: expected ErrNotPlayersTurn, got %v", err)
	}

	next, report, err := s.Move("p1", "e4", now)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !report.Applied || report.SAN != "e4" {
		t.Fatalf("report = %+v", report)
	}
	if next.Turn != Black || next.PlyCount != 1 {
		t.Fatalf("turn %q ply %d after e4", next.Turn, next.PlyCount)
	}
	if len(next.History) != 1 || next.History[0].SAN != "e4" {
		t.Fatalf("history = %+v", next.History)
	}
	if s.PlyCount != 0 || len(s.History) != 0 {
		t.Fatalf("original session mutated")
	}
}

func TestTurnAlternation(t *testing.T) {
	s := newTimedSession(t)
	now := time.Now()
	movers := []struct{ id, san string }{
		{"p1", "e4"}, {"p2", "e5"}, {"p1", "Nf3"}, {"p2", "Nc6"},
	}
	for _, m := range movers {
		next, _, err := s.Move(m.id, m.san, now)
		if err != nil {
			t.Fatalf("Move(%s, %s): %v", m.id, m.san, err)
		}
		s = next
	}
	if s.PlyCount != 4 || s.Turn != White {
		t.Fatalf("ply %d turn %q after four half-moves", s.PlyCount, s.Turn)
	}
	if s.MoveCount() != 3 {
		t.Fatalf("move count = %d", s.MoveCount())
	}
}

func TestJoinFillsSlot(t *testing.T) {
	s, err := NewSession(Params{ID: "g1", Creator: "p2", White: OpenSlot(), Black: PlayerSlot("p2")})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Status.Phase != PhaseWaiting || s.FreeSlots != 1 {
		t.Fatalf("fresh session: phase %q free %d", s.Status.Phase, s.FreeSlots)
	}
	if _, _, err := s.Move("p2", "e4", time.Now()); !errors.Is(err, ErrGameNotInProgress) {
		t.Fatalf("move while waiting: %v", err)
	}

	joined, err := s.Join(White, "p1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.Status.Phase != PhaseInProgress || joined.FreeSlots != 0 {
		t.Fatalf("after join: phase %q free %d", joined.Status.Phase, joined.FreeSlots)
	}
	if _, err := joined.Join(White, "p3"); !errors.Is(err, ErrSlotNotOpen) {
		t.Fatalf("double join: %v", err)
	}
}

func TestJoinRejectsReservedTokens(t *testing.T) {
	s, err := NewSession(Params{ID: "g1", Creator: "p2", White: PlayerSlot("p2"), Black: OpenSlot()})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	for _, id := range []string{"OPEN", "AI"} {
		if _, err := s.Join(Black, id); !errors.Is(err, ErrReservedPlayerID) {
			t.Fatalf("Join(Black, %q): %v", id, err)
		}
	}
	if _, err := s.Join("x", "p1"); !errors.Is(err, ErrSlotNotOpen) {
		t.Fatalf("join on bogus side: %v", err)
	}

	// A token stored as a player id would round-trip as an open slot and fail
	// the free_slots check on load; rejected joins keep the document loadable.
	joined, err := s.Join(Black, "p1")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := FromDocument(ToDocument(joined)); err != nil {
		t.Fatalf("round-trip after join: %v", err)
	}
}

func TestCheckmateEndsGame(t *testing.T) {
	s := newTimedSession(t)
	now := time.Now()
	for _, m := range []struct{ id, san string }{
		{"p1", "f3"}, {"p2", "e5"}, {"p1", "g4"},
	} {
		next, _, err := s.Move(m.id, m.san, now)
		if err != nil {
			t.Fatalf("Move(%s): %v", m.san, err)
		}
		s = next
	}

	next, report, err := s.Move("p2", "Qh4#", now)
	if err != nil {
		t.Fatalf("mating move: %v", err)
	}
	if report.Outcome != OutcomeCheckmate {
		t.Fatalf("outcome = %q", report.Outcome)
	}
	if next.Status.Phase != PhaseOver || next.Status.Reason != ReasonCheckmate || next.Status.Result != ResultBlackWins {
		t.Fatalf("status = %+v", next.Status)
	}
	if _, _, err := next.Move("p1", "e4", now); !errors.Is(err, ErrGameNotInProgress) {
		t.Fatalf("move after mate: %v", err)
	}
}

func TestRepetitionDrawEndsGame(t *testing.T) {
	s := newTimedSession(t)
	now := time.Now()
	for _, m := range []struct{ id, san string }{
		{"p1", "Nf3"}, {"p2", "Nf6"}, {"p1", "Ng1"}, {"p2", "Ng8"},
		{"p1", "Nf3"}, {"p2", "Nf6"}, {"p1", "Ng1"},
	} {
		next, _, err := s.Move(m.id, m.san, now)
		if err != nil {
			t.Fatalf("Move(%s, %s): %v", m.id, m.san, err)
		}
		s = next
	}

	// The knights return home for the third time: the starting position has
	// now occurred thrice and the game ends as a draw on the spot.
	next, report, err := s.Move("p2", "Ng8", now)
	if err != nil {
		t.Fatalf("repeating move: %v", err)
	}
	if report.Outcome != OutcomeRepetition {
		t.Fatalf("outcome = %q", report.Outcome)
	}
	if next.Status.Phase != PhaseOver || next.Status.Reason != ReasonDrawByRule || next.Status.Result != ResultDraw {
		t.Fatalf("status = %+v", next.Status)
	}
	if _, _, err := next.Move("p1", "e4", now); !errors.Is(err, ErrGameNotInProgress) {
		t.Fatalf("move after rule draw: %v", err)
	}
}

func TestDrawOfferAccepted(t *testing.T) {
	s := newTimedSession(t)

	offered, err := s.OfferDraw("p1")
	if err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if !offered.DrawOffers[White].Made || offered.DrawOffers[White].Accepted {
		t.Fatalf("offer state = %+v", offered.DrawOffers[White])
	}
	if _, err := offered.OfferDraw("p1"); !errors.Is(err, ErrDrawOfferAlreadyMade) {
		t.Fatalf("repeat offer: %v", err)
	}
	// The offerer has nothing to respond to; the offer is directed at p2.
	if _, err := offered.RespondToOffer("p1", true); !errors.Is(err, ErrNothingToRespondTo) {
		t.Fatalf("offerer responding: %v", err)
	}

	done, err := offered.RespondToOffer("p2", true)
	if err != nil {
		t.Fatalf("RespondToOffer: %v", err)
	}
	if done.Status.Phase != PhaseOver || done.Status.Reason != ReasonDrawAccepted || done.Status.Result != ResultDraw {
		t.Fatalf("status = %+v", done.Status)
	}
	if !done.DrawOffers[White].Accepted {
		t.Fatalf("offer not marked accepted: %+v", done.DrawOffers[White])
	}
}

func TestDrawOfferDeclined(t *testing.T) {
	s := newTimedSession(t)
	offered, err := s.OfferDraw("p1")
	if err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	declined, err := offered.RespondToOffer("p2", false)
	if err != nil {
		t.Fatalf("RespondToOffer: %v", err)
	}
	if declined.Status.Phase != PhaseInProgress {
		t.Fatalf("phase = %q after decline", declined.Status.Phase)
	}
	if declined.DrawOffers[White].Made {
		t.Fatalf("declined offer still pending")
	}
	// A fresh offer is allowed after a decline.
	if _, err := declined.OfferDraw("p1"); err != nil {
		t.Fatalf("re-offer after decline: %v", err)
	}
}

func TestMoveWithdrawsDrawOffer(t *testing.T) {
	s := newTimedSession(t)
	offered, err := s.OfferDraw("p1")
	if err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	next, _, err := offered.Move("p1", "e4", time.Now())
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if next.DrawOffers[White].Made || next.DrawOffers[Black].Made {
		t.Fatalf("draw offers survived a move: %+v", next.DrawOffers)
	}
}

func TestResign(t *testing.T) {
	s := newTimedSession(t)
	next, err := s.Resign("p2")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if next.Status.Phase != PhaseOver || next.Status.Reason != ReasonResignation || next.Status.Result != ResultWhiteWins {
		t.Fatalf("status = %+v", next.Status)
	}
	if !next.Resigned[Black] || next.Resigned[White] {
		t.Fatalf("resigned flags = %+v", next.Resigned)
	}
	if _, err := s.Resign("stranger"); !errors.Is(err, ErrUserNotInGame) {
		t.Fatalf("stranger resigning: %v", err)
	}
}

func TestTimeoutBeatsNotation(t *testing.T) {
	s := newTimedSession(t)
	now := time.Now()
	s.Clock.LastMoveAt = now.Add(-11 * time.Minute)

	// Even a legal move is refused once the mover's flag has fallen.
	next, report, err := s.Move("p1", "e4", now)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if report.Applied {
		t.Fatalf("move applied on an expired clock")
	}
	if next.Status.Phase != PhaseOver || next.Status.Reason != ReasonTimeout || next.Status.Result != ResultBlackWins {
		t.Fatalf("status = %+v", next.Status)
	}
	if len(next.History) != 0 {
		t.Fatalf("history grew on timeout: %+v", next.History)
	}
}

func TestClockDebitOnMove(t *testing.T) {
	s := newTimedSession(t)
	t0 := time.Now()

	first, _, err := s.Move("p1", "e4", t0)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	// The first move starts the clock without charging the setup delay.
	if got := first.Clock.Remaining[White]; got != 600*time.Second {
		t.Fatalf("white remaining after first move = %v", got)
	}
	if !first.Clock.LastMoveAt.Equal(t0) {
		t.Fatalf("LastMoveAt = %v, want %v", first.Clock.LastMoveAt, t0)
	}

	second, _, err := first.Move("p2", "e5", t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got := second.Clock.Remaining[Black]; got != 570*time.Second {
		t.Fatalf("black remaining after 30s think = %v", got)
	}
}

func TestFailedOperationsLeaveSessionUntouched(t *testing.T) {
	s := newTimedSession(t)
	before := snapshot(t, s)
	now := time.Now()

	if _, _, err := s.Move("p2", "e5", now); err == nil {
		t.Fatalf("wrong-turn move succeeded")
	}
	if _, _, err := s.Move("p1", "banana", now); !errors.Is(err, ErrMalformedNotation) {
		t.Fatalf("malformed move: %v", err)
	}
	if _, _, err := s.Move("p1", "Ke4", now); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal move: %v", err)
	}
	if _, err := s.OfferDraw("stranger"); !errors.Is(err, ErrUserNotInGame) {
		t.Fatalf("stranger offer: %v", err)
	}
	if _, err := s.RespondToOffer("p2", true); !errors.Is(err, ErrNothingToRespondTo) {
		t.Fatalf("respond with no offer: %v", err)
	}

	if after := snapshot(t, s); after != before {
		t.Fatalf("session mutated by failed operations:\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestAISlotIdentity(t *testing.T) {
	s, err := NewSession(Params{ID: "g1", Creator: "p1", White: PlayerSlot("p1"), Black: AISlot()})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	next, _, err := s.Move("p1", "e4", time.Now())
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, _, err := next.Move("p1", "e5", time.Now()); !errors.Is(err, ErrNotPlayersTurn) {
		t.Fatalf("human moving for AI: %v", err)
	}
	after, _, err := next.Move("AI", "e5", time.Now())
	if err != nil {
		t.Fatalf("AI move: %v", err)
	}
	if after.Turn != White {
		t.Fatalf("turn = %q after AI reply", after.Turn)
	}
}
