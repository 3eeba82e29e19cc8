package game

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartingFEN is the standard initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// sanShape accepts castles, piece moves with optional disambiguation and
// capture, pawn moves and promotions, with an optional check/mate suffix.
// It gates parse errors (MalformedNotation) from legality errors.
var sanShape = regexp.MustCompile(`^(O-O(-O)?|0-0(-0)?|[KQRBN][a-h]?[1-8]?x?[a-h][1-8]|[a-h]x[a-h][1-8](=[QRBN])?|[a-h][1-8](=[QRBN])?)[+#]?$`)

func newGameFromFEN(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: bad fen %q", ErrMalformedDocument, fen)
	}
	return nchess.NewGame(opt), nil
}

// replay rebuilds a live game by applying the SAN history from the initial
// position. Stored FENs are presentation state only; replaying is the one
// source of truth for legality and repetition tracking.
func replay(initialFEN string, history []HistoryEntry) (*nchess.Game, error) {
	g, err := newGameFromFEN(initialFEN)
	if err != nil {
		return nil, err
	}
	for i, h := range history {
		if err := g.PushNotationMove(h.SAN, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: history move %d (%s): %v", ErrMalformedDocument, i+1, h.SAN, err)
		}
	}
	return g, nil
}

func pushSAN(g *nchess.Game, san string) error {
	return g.PushNotationMove(san, nchess.AlgebraicNotation{}, nil)
}

// applyNotation plays one SAN move on g and reports the normalized SAN, the
// resulting FEN and the per-move outcome tag. g is advanced on success and
// untouched on error.
func applyNotation(g *nchess.Game, notation string) (string, string, Outcome, error) {
	notation = strings.TrimSpace(notation)
	if !sanShape.MatchString(notation) {
		return "", "", OutcomeNormal, fmt.Errorf("%w: %q", ErrMalformedNotation, notation)
	}

	pos := g.Position()
	if err := g.PushNotationMove(notation, nchess.AlgebraicNotation{}, nil); err != nil {
		return "", "", OutcomeNormal, fmt.Errorf("%w: %q: %v", ErrIllegalMove, notation, err)
	}

	moves := g.Moves()
	last := moves[len(moves)-1]
	san := nchess.AlgebraicNotation{}.Encode(pos, last)
	fen := g.FEN()

	return san, fen, outcomeAfterMove(g, san, fen), nil
}

func outcomeAfterMove(g *nchess.Game, san, fen string) Outcome {
	if g.Outcome() != nchess.NoOutcome {
		switch g.Method() {
		case nchess.Checkmate:
			return OutcomeCheckmate
		case nchess.Stalemate:
			return OutcomeStalemate
		case nchess.InsufficientMaterial:
			return OutcomeInsufficientMaterial
		case nchess.FivefoldRepetition:
			return OutcomeRepetition
		case nchess.SeventyFiveMoveRule:
			return OutcomeFiftyMove
		}
	}

	// Fifty-move rule: half-move clock reaches 100 half-moves.
	if halfMoveClock(fen) >= 100 {
		return OutcomeFiftyMove
	}

	// Threefold repetition: the position after the move (placement, side to
	// move, castling rights, en-passant target) occurred twice before.
	if countRepetitions(g, repetitionKey(fen)) >= 3 {
		return OutcomeRepetition
	}

	switch {
	case strings.HasSuffix(san, "#"):
		return OutcomeCheckmate
	case strings.HasSuffix(san, "+"):
		return OutcomeCheck
	}
	return OutcomeNormal
}

func countRepetitions(g *nchess.Game, key string) int {
	n := 0
	for _, pos := range g.Positions() {
		if repetitionKey(pos.String()) == key {
			n++
		}
	}
	return n
}

// repetitionKey keeps the first four FEN fields and drops the counters.
func repetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return fen
	}
	return strings.Join(fields[:4], " ")
}

func halfMoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}

func fenTurn(fen string) Color {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return White
	}
	return Color(fields[1])
}

// UCIToSAN converts a UCI move against the position in fen to normalized SAN.
// Used by engine-driven AI slots, which speak UCI.
func UCIToSAN(fen, uci string) (string, error) {
	g, err := newGameFromFEN(fen)
	if err != nil {
		return "", err
	}
	pos := g.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(strings.TrimSpace(uci)))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedNotation, uci, err)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	// Decode does not check legality; applying the move does.
	if err := g.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrIllegalMove, uci, err)
	}
	return san, nil
}
