package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robochess/server/internal/archive"
	"github.com/robochess/server/internal/game"
	"github.com/robochess/server/internal/obslog"
	"github.com/robochess/server/internal/store"
)

// Mover produces an engine reply (UCI) for the position in fen. Implemented by
// aiplayer.Engine.
type Mover interface {
	BestMove(ctx context.Context, fen string) (string, error)
}

// IdentityChecker reports whether userID names a known user. Identity lookups
// are resolved by the caller's platform; nil means every id is accepted.
type IdentityChecker func(ctx context.Context, userID string) (bool, error)

var ErrUnknownIdentity = errf("unknown user identity")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Service orchestrates game operations over the redis stores: identity and
// controller checks, the copy-on-write core transitions under CAS, logging,
// the optional engine reply for AI slots and the optional archive write.
type Service struct {
	games       *store.Games
	controllers *store.Controllers
	repo        *archive.Repository
	mover       Mover
	identity    IdentityChecker
	now         func() time.Time
}

func New(games *store.Games, controllers *store.Controllers) *Service {
	return &Service{games: games, controllers: controllers, now: time.Now}
}

// AttachArchive wires a database repository for persisting finished games.
func (s *Service) AttachArchive(r *archive.Repository) { s.repo = r }

// AttachMover wires a UCI engine to answer moves in games with an AI slot.
func (s *Service) AttachMover(m Mover) { s.mover = m }

// SetIdentityChecker installs the user-existence callback.
func (s *Service) SetIdentityChecker(fn IdentityChecker) { s.identity = fn }

// CreateParams describes a new game. White and Black are slot tokens: "OPEN",
// "AI", or a player id.
type CreateParams struct {
	Creator       string
	White, Black  string
	TimePerPlayer time.Duration
	Increment     time.Duration
	BoardID       string
	Public        bool
}

func (s *Service) CreateGame(ctx context.Context, p CreateParams) (*game.Session, error) {
	white, black := game.ParseSlot(p.White), game.ParseSlot(p.Black)

	ids := []string{p.Creator}
	if white.Kind == game.SlotPlayer {
		ids = append(ids, white.PlayerID)
	}
	if black.Kind == game.SlotPlayer {
		ids = append(ids, black.PlayerID)
	}
	if err := s.checkIdentities(ctx, ids...); err != nil {
		return nil, err
	}

	if p.BoardID != "" {
		rec, err := s.controllers.Get(ctx, p.BoardID)
		if err != nil {
			return nil, err
		}
		if !s.controllers.Live(rec) {
			return nil, fmt.Errorf("%w: controller for board %s is stale", store.ErrControllerUnknown, p.BoardID)
		}
	}

	sess, err := game.NewSession(game.Params{
		ID:            uuid.NewString(),
		Creator:       p.Creator,
		White:         white,
		Black:         black,
		TimePerPlayer: p.TimePerPlayer,
		Increment:     p.Increment,
		BoardID:       p.BoardID,
		Public:        p.Public,
	})
	if err != nil {
		return nil, err
	}
	if err := s.games.Save(ctx, sess); err != nil {
		return nil, err
	}
	if p.BoardID != "" {
		if _, err := s.controllers.AssignGame(ctx, p.BoardID, sess.ID); err != nil {
			return nil, err
		}
	}

	obslog.L().Info("game_create",
		zap.String("game_id", sess.ID),
		zap.String("creator", p.Creator),
		zap.String("white", white.Token()),
		zap.String("black", black.Token()),
		zap.String("board_id", p.BoardID),
		zap.Bool("public", p.Public),
		zap.Duration("time_per_player", p.TimePerPlayer),
	)
	return sess, nil
}

func (s *Service) JoinGame(ctx context.Context, gameID string, side game.Color, playerID string) (*game.Session, error) {
	if err := s.checkIdentities(ctx, playerID); err != nil {
		return nil, err
	}
	sess, err := s.games.Update(ctx, gameID, func(cur *game.Session) (*game.Session, error) {
		return cur.Join(side, playerID)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_join",
		zap.String("game_id", gameID),
		zap.String("player_id", playerID),
		zap.String("side", string(side)),
		zap.String("phase", string(sess.Status.Phase)),
	)
	return sess, nil
}

// MoveOutcome is the result of MakeMove: the final session state and the move
// report, plus the engine's reply when an AI slot answered.
type MoveOutcome struct {
	Session  *game.Session
	Report   game.MoveReport
	AIReport *game.MoveReport
}

func (s *Service) MakeMove(ctx context.Context, gameID, userID, notation string) (*MoveOutcome, error) {
	sess, report, err := s.applyMove(ctx, gameID, userID, notation)
	if err != nil {
		return nil, err
	}
	out := &MoveOutcome{Session: sess, Report: *report}

	if s.shouldAnswerWithEngine(sess) {
		aiSess, aiReport, err := s.engineReply(ctx, gameID, sess.CurrentFEN())
		if err != nil {
			// The game stays valid with the human move applied; the AI slot
			// can still be driven through the API.
			obslog.L().Error("game_ai_reply_error", zap.String("game_id", gameID), zap.Error(err))
		} else {
			out.Session = aiSess
			out.AIReport = aiReport
		}
	}
	return out, nil
}

func (s *Service) applyMove(ctx context.Context, gameID, userID, notation string) (*game.Session, *game.MoveReport, error) {
	var report *game.MoveReport
	sess, err := s.games.Update(ctx, gameID, func(cur *game.Session) (*game.Session, error) {
		next, rep, err := cur.Move(userID, notation, s.now())
		if err != nil {
			return nil, err
		}
		report = rep
		return next, nil
	})
	if err != nil {
		return nil, nil, err
	}

	obslog.L().Info("game_move",
		zap.String("game_id", gameID),
		zap.String("user_id", userID),
		zap.Bool("applied", report.Applied),
		zap.String("san", report.SAN),
		zap.String("outcome", string(report.Outcome)),
		zap.String("phase", string(sess.Status.Phase)),
	)
	s.archiveIfFinished(ctx, sess)
	return sess, report, nil
}

func (s *Service) shouldAnswerWithEngine(sess *game.Session) bool {
	return s.mover != nil &&
		sess.Status.Phase == game.PhaseInProgress &&
		sess.Players[sess.Turn].IsAI()
}

func (s *Service) engineReply(ctx context.Context, gameID, fen string) (*game.Session, *game.MoveReport, error) {
	uci, err := s.mover.BestMove(ctx, fen)
	if err != nil {
		return nil, nil, err
	}
	san, err := game.UCIToSAN(fen, uci)
	if err != nil {
		return nil, nil, err
	}
	return s.applyMove(ctx, gameID, "AI", san)
}

func (s *Service) OfferDraw(ctx context.Context, gameID, userID string) (*game.Session, error) {
	sess, err := s.games.Update(ctx, gameID, func(cur *game.Session) (*game.Session, error) {
		return cur.OfferDraw(userID)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_draw_offer",
		zap.String("game_id", gameID),
		zap.String("user_id", userID),
	)
	return sess, nil
}

func (s *Service) RespondToOffer(ctx context.Context, gameID, userID string, accept bool) (*game.Session, error) {
	sess, err := s.games.Update(ctx, gameID, func(cur *game.Session) (*game.Session, error) {
		return cur.RespondToOffer(userID, accept)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_draw_response",
		zap.String("game_id", gameID),
		zap.String("user_id", userID),
		zap.Bool("accepted", accept),
		zap.String("phase", string(sess.Status.Phase)),
	)
	s.archiveIfFinished(ctx, sess)
	return sess, nil
}

func (s *Service) Resign(ctx context.Context, gameID, userID string) (*game.Session, error) {
	sess, err := s.games.Update(ctx, gameID, func(cur *game.Session) (*game.Session, error) {
		return cur.Resign(userID)
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_resign",
		zap.String("game_id", gameID),
		zap.String("user_id", userID),
		zap.String("result", string(sess.Status.Result)),
	)
	s.archiveIfFinished(ctx, sess)
	return sess, nil
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*game.Session, error) {
	return s.games.Load(ctx, gameID)
}

func (s *Service) RegisterController(ctx context.Context, boardID, version string) (*store.Controller, error) {
	rec, err := s.controllers.Register(ctx, boardID, version)
	if err != nil {
		return nil, err
	}
	obslog.L().Info("controller_register",
		zap.String("board_id", rec.BoardID),
		zap.String("board_version", rec.BoardVersion),
		zap.String("game_id", rec.GameID),
	)
	return rec, nil
}

func (s *Service) HeartbeatController(ctx context.Context, boardID string) (*store.Controller, error) {
	return s.controllers.Heartbeat(ctx, boardID)
}

func (s *Service) checkIdentities(ctx context.Context, ids ...string) error {
	if s.identity == nil {
		return nil
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		ok, err := s.identity(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
		}
	}
	return nil
}

func (s *Service) archiveIfFinished(ctx context.Context, sess *game.Session) {
	if s.repo == nil || sess.Status.Phase != game.PhaseOver {
		return
	}
	if err := s.repo.SaveFinished(ctx, sess, s.now()); err != nil {
		obslog.L().Error("game_archive_error",
			zap.String("game_id", sess.ID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("game_archive",
		zap.String("game_id", sess.ID),
		zap.String("result", string(sess.Status.Result)),
		zap.String("reason", string(sess.Status.Reason)),
	)
}

// IsDomainError reports whether err is a caller mistake rather than an
// infrastructure failure, for transport-level status mapping.
func IsDomainError(err error) bool {
	for _, target := range []error{
		game.ErrMalformedNotation, game.ErrIllegalMove, game.ErrGameNotInProgress,
		game.ErrNotPlayersTurn, game.ErrUserNotInGame, game.ErrSlotNotOpen,
		game.ErrReservedPlayerID, game.ErrDrawOfferAlreadyMade,
		game.ErrNothingToRespondTo,
		game.ErrMalformedDocument, game.ErrTwoAIPlayers, game.ErrNegativeTime,
		store.ErrControllerActive, store.ErrControllerUnknown,
		ErrUnknownIdentity,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
