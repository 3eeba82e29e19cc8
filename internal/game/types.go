package game

// Color identifies a chess side using the wire tokens "w" and "b".
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// Slot token values used in persisted documents.
const (
	slotTokenOpen = "OPEN"
	slotTokenAI   = "AI"
)

// SlotKind discriminates the three player-slot variants.
type SlotKind int

const (
	SlotOpen SlotKind = iota
	SlotAI
	SlotPlayer
)

// Slot is one of the two player positions in a game: open, AI-controlled,
// or occupied by a concrete player id.
type Slot struct {
	Kind     SlotKind
	PlayerID string
}

func OpenSlot() Slot            { return Slot{Kind: SlotOpen} }
func AISlot() Slot              { return Slot{Kind: SlotAI} }
func PlayerSlot(id string) Slot { return Slot{Kind: SlotPlayer, PlayerID: id} }
func (s Slot) IsOpen() bool     { return s.Kind == SlotOpen }
func (s Slot) IsAI() bool       { return s.Kind == SlotAI }

// Matches reports whether userID is allowed to act for this slot. An AI slot
// is driven by the designated agent identity "AI"; who may present that
// identity is the caller's policy.
func (s Slot) Matches(userID string) bool {
	switch s.Kind {
	case SlotPlayer:
		return s.PlayerID == userID
	case SlotAI:
		return userID == slotTokenAI
	default:
		return false
	}
}

// Token returns the document encoding of the slot.
func (s Slot) Token() string {
	switch s.Kind {
	case SlotOpen:
		return slotTokenOpen
	case SlotAI:
		return slotTokenAI
	default:
		return s.PlayerID
	}
}

// ReservedSlotToken reports whether id collides with a slot token. Such ids
// are rejected as players: stored, they would read back as an open or AI slot.
func ReservedSlotToken(id string) bool {
	return id == slotTokenOpen || id == slotTokenAI
}

// ParseSlot decodes a document slot token.
func ParseSlot(token string) Slot {
	switch token {
	case slotTokenOpen:
		return OpenSlot()
	case slotTokenAI:
		return AISlot()
	default:
		return PlayerSlot(token)
	}
}

// Phase is the coarse lifecycle state of a session.
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseInProgress Phase = "in_progress"
	PhaseOver       Phase = "over"
)

// Reason records why a game ended.
type Reason string

const (
	ReasonCheckmate    Reason = "checkmate"
	ReasonStalemate    Reason = "stalemate"
	ReasonDrawByRule   Reason = "draw_by_rule"
	ReasonDrawAccepted Reason = "draw_accepted"
	ReasonResignation  Reason = "resignation"
	ReasonTimeout      Reason = "timeout"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCheckmate, ReasonStalemate, ReasonDrawByRule, ReasonDrawAccepted, ReasonResignation, ReasonTimeout:
		return true
	}
	return false
}

// Result uses PGN result tokens so the document field matches standard
// notation ("*" while undetermined).
type Result string

const (
	ResultWhiteWins    Result = "1-0"
	ResultBlackWins    Result = "0-1"
	ResultDraw         Result = "1/2-1/2"
	ResultUndetermined Result = "*"
)

func winFor(c Color) Result {
	if c == White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

// Status is the single authoritative lifecycle value. The overlapping
// booleans of the persisted format (in_progress, game_over.game_over) are
// derived from it at serialization time only.
type Status struct {
	Phase  Phase
	Reason Reason
	Result Result
}

func waiting() Status    { return Status{Phase: PhaseWaiting, Result: ResultUndetermined} }
func inProgress() Status { return Status{Phase: PhaseInProgress, Result: ResultUndetermined} }
func over(reason Reason, result Result) Status {
	return Status{Phase: PhaseOver, Reason: reason, Result: result}
}

// DrawOffer is the per-side draw-offer sub-state.
type DrawOffer struct {
	Made     bool
	Accepted bool
}

// HistoryEntry is one applied half-move: the normalized SAN and the FEN of
// the resulting position.
type HistoryEntry struct {
	SAN string
	FEN string
}

// Outcome tags the immediate effect of a single applied move.
type Outcome string

const (
	OutcomeNormal               Outcome = "normal"
	OutcomeCheck                Outcome = "check"
	OutcomeCheckmate            Outcome = "checkmate"
	OutcomeStalemate            Outcome = "stalemate"
	OutcomeFiftyMove            Outcome = "draw_fifty_move"
	OutcomeInsufficientMaterial Outcome = "draw_insufficient_material"
	OutcomeRepetition           Outcome = "draw_repetition"
)

// Terminal reports whether the outcome ends the game.
func (o Outcome) Terminal() bool { return o != OutcomeNormal && o != OutcomeCheck }

// MoveReport describes what a Move call did. Applied is false when the mover's
// clock had already expired: the session transitions to a timeout loss and the
// submitted notation is never applied.
type MoveReport struct {
	Applied bool
	SAN     string
	Outcome Outcome
}

// Domain error taxonomy. All are recoverable by the caller and leave the
// session unchanged.
var (
	ErrMalformedNotation    = errf("malformed move notation")
	ErrIllegalMove          = errf("ambiguous or illegal move")
	ErrGameNotInProgress    = errf("game is not in progress")
	ErrNotPlayersTurn       = errf("not this player's turn")
	ErrUserNotInGame        = errf("user is not a player in this game")
	ErrSlotNotOpen          = errf("slot is not open")
	ErrReservedPlayerID     = errf("player id is a reserved slot token")
	ErrDrawOfferAlreadyMade = errf("draw offer already made")
	ErrNothingToRespondTo   = errf("no draw offer to respond to")
	ErrMalformedDocument    = errf("malformed game document")
	ErrTwoAIPlayers         = errf("cannot create a game with two AI slots")
	ErrNegativeTime         = errf("cannot have negative time")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
