package game

import (
	"errors"
	"testing"
)

func mustReplay(t *testing.T, fen string, sans ...string) *Session {
	t.Helper()
	s, err := NewSession(Params{
		ID:      "g1",
		Creator: "c1",
		White:   PlayerSlot("p1"),
		Black:   PlayerSlot("p2"),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if fen != "" {
		s.InitialFEN = fen
	}
	g, err := replay(s.InitialFEN, nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, san := range sans {
		normalized, posFEN, _, err := applyNotation(g, san)
		if err != nil {
			t.Fatalf("applyNotation(%s): %v", san, err)
		}
		s.History = append(s.History, HistoryEntry{SAN: normalized, FEN: posFEN})
		s.PlyCount++
	}
	return s
}

func applyOn(t *testing.T, s *Session, san string) (string, string, Outcome, error) {
	t.Helper()
	g, err := replay(s.InitialFEN, s.History)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	return applyNotation(g, san)
}

func TestApplyNotationOpening(t *testing.T) {
	s := mustReplay(t, "")
	san, fen, outcome, err := applyOn(t, s, "e4")
	if err != nil {
		t.Fatalf("apply e4: %v", err)
	}
	if san != "e4" {
		t.Fatalf("normalized san = %q", san)
	}
	if outcome != OutcomeNormal {
		t.Fatalf("outcome = %q", outcome)
	}
	if fenTurn(fen) != Black {
		t.Fatalf("side to move after e4 = %q", fenTurn(fen))
	}
}

func TestMalformedVersusIllegal(t *testing.T) {
	s := mustReplay(t, "")
	if _, _, _, err := applyOn(t, s, "banana"); !errors.Is(err, ErrMalformedNotation) {
		t.Fatalf("expected ErrMalformedNotation, got %v", err)
	}
	if _, _, _, err := applyOn(t, s, "Ke4"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for impossible king move, got %v", err)
	}
	// Well-formed SAN that no white piece can play right now.
	if _, _, _, err := applyOn(t, s, "e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove for unreachable square, got %v", err)
	}
}

func TestCheckOutcome(t *testing.T) {
	s := mustReplay(t, "", "c4", "d5")
	_, _, outcome, err := applyOn(t, s, "Qa4+")
	if err != nil {
		t.Fatalf("apply Qa4+: %v", err)
	}
	if outcome != OutcomeCheck {
		t.Fatalf("outcome = %q, want check", outcome)
	}
}

func TestCheckmateOutcome(t *testing.T) {
	s := mustReplay(t, "", "f3", "e5", "g4")
	_, _, outcome, err := applyOn(t, s, "Qh4#")
	if err != nil {
		t.Fatalf("apply Qh4#: %v", err)
	}
	if outcome != OutcomeCheckmate {
		t.Fatalf("outcome = %q, want checkmate", outcome)
	}
}

func TestStalemateOutcome(t *testing.T) {
	// Loyd's ten-move stalemate.
	s := mustReplay(t, "",
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "Qxc7", "Rah6",
		"h4", "f6", "Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7",
		"Qxc8", "Kg6")
	_, _, outcome, err := applyOn(t, s, "Qe6")
	if err != nil {
		t.Fatalf("apply Qe6: %v", err)
	}
	if outcome != OutcomeStalemate {
		t.Fatalf("outcome = %q, want stalemate", outcome)
	}
}

func TestThreefoldRepetitionOutcome(t *testing.T) {
	s := mustReplay(t, "",
		"Nf3", "Nf6", "Ng1", "Ng8",
		"Nf3", "Nf6", "Ng1")
	// The eighth move restores the starting position for the third time.
	_, _, outcome, err := applyOn(t, s, "Ng8")
	if err != nil {
		t.Fatalf("apply Ng8: %v", err)
	}
	if outcome != OutcomeRepetition {
		t.Fatalf("outcome = %q, want repetition", outcome)
	}
}

func TestFiftyMoveOutcome(t *testing.T) {
	s := mustReplay(t, "4k3/8/8/8/8/8/8/R3K3 w Q - 99 80")
	_, _, outcome, err := applyOn(t, s, "Ra2")
	if err != nil {
		t.Fatalf("apply Ra2: %v", err)
	}
	if outcome != OutcomeFiftyMove {
		t.Fatalf("outcome = %q, want fifty-move draw", outcome)
	}
}

func TestInsufficientMaterialOutcome(t *testing.T) {
	s := mustReplay(t, "4k3/8/8/8/8/8/4p3/4K3 w - - 0 1")
	_, _, outcome, err := applyOn(t, s, "Kxe2")
	if err != nil {
		t.Fatalf("apply Kxe2: %v", err)
	}
	if outcome != OutcomeInsufficientMaterial {
		t.Fatalf("outcome = %q, want insufficient material", outcome)
	}
}

func TestUCIToSAN(t *testing.T) {
	san, err := UCIToSAN(StartingFEN, "g1f3")
	if err != nil {
		t.Fatalf("UCIToSAN: %v", err)
	}
	if san != "Nf3" {
		t.Fatalf("san = %q, want Nf3", san)
	}
	if _, err := UCIToSAN(StartingFEN, "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}
