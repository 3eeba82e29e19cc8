package httpapi

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/robochess/server/internal/game"
	"github.com/robochess/server/internal/obslog"
	"github.com/robochess/server/internal/service"
	"github.com/robochess/server/internal/store"
	"github.com/robochess/server/pkg/gamedto"
)

// Server exposes the game service over fasthttp. Shape validation (missing
// fields, bad side tokens) happens here; everything semantic is the core's
// job and comes back as a domain sentinel.
type Server struct {
	svc *service.Service
}

func NewServer(svc *service.Service) *Server {
	return &Server{svc: svc}
}

// Handler is the root request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		switch {
		case method == fasthttp.MethodGet && path == "/game":
			s.handleGetGame(ctx)
		case method == fasthttp.MethodPost && path == "/creategame":
			s.handleCreateGame(ctx)
		case method == fasthttp.MethodPost && path == "/joingame":
			s.handleJoinGame(ctx)
		case method == fasthttp.MethodPost && path == "/makemove":
			s.handleMakeMove(ctx)
		case method == fasthttp.MethodPost && path == "/drawoffer":
			s.handleDrawOffer(ctx)
		case method == fasthttp.MethodPost && path == "/respondoffer":
			s.handleRespondOffer(ctx)
		case method == fasthttp.MethodPost && path == "/resign":
			s.handleResign(ctx)
		case method == fasthttp.MethodPost && path == "/controllerregister":
			s.handleControllerRegister(ctx)
		case method == fasthttp.MethodPost && path == "/controllerheartbeat":
			s.handleControllerHeartbeat(ctx)
		default:
			writeErrorBody(ctx, fasthttp.StatusNotFound, "not found", "not_found")
		}
	}
}

func (s *Server) handleCreateGame(ctx *fasthttp.RequestCtx) {
	var req gamedto.CreateGameRequest
	if !decode(ctx, &req) {
		return
	}
	if strings.TrimSpace(req.Creator) == "" || strings.TrimSpace(req.White) == "" || strings.TrimSpace(req.Black) == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "creator, white and black are required", "bad_request")
		return
	}
	if req.TimeControlSec < 0 || req.IncrementSec < 0 {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "time control must not be negative", "negative_time")
		return
	}

	sess, err := s.svc.CreateGame(ctx, service.CreateParams{
		Creator:       strings.TrimSpace(req.Creator),
		White:         strings.TrimSpace(req.White),
		Black:         strings.TrimSpace(req.Black),
		TimePerPlayer: secToDuration(req.TimeControlSec),
		Increment:     secToDuration(req.IncrementSec),
		BoardID:       strings.TrimSpace(req.BoardID),
		Public:        req.Public,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

func (s *Server) handleJoinGame(ctx *fasthttp.RequestCtx) {
	var req gamedto.JoinGameRequest
	if !decode(ctx, &req) {
		return
	}
	side := game.Color(strings.TrimSpace(req.Side))
	if req.GameID == "" || req.PlayerID == "" || !side.Valid() {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id, player_id and a valid side are required", "bad_request")
		return
	}
	if game.ReservedSlotToken(req.PlayerID) {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "player_id must not be a slot token", "reserved_player_id")
		return
	}

	sess, err := s.svc.JoinGame(ctx, req.GameID, side, req.PlayerID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

type moveResponse struct {
	Applied bool           `json:"applied"`
	SAN     string         `json:"san"`
	Outcome string         `json:"outcome"`
	AISAN   string         `json:"ai_san,omitempty"`
	Game    *game.Document `json:"game"`
}

func (s *Server) handleMakeMove(ctx *fasthttp.RequestCtx) {
	var req gamedto.MoveRequest
	if !decode(ctx, &req) {
		return
	}
	if req.GameID == "" || req.UserID == "" || strings.TrimSpace(req.Move) == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id, user_id and move are required", "bad_request")
		return
	}

	out, err := s.svc.MakeMove(ctx, req.GameID, req.UserID, req.Move)
	if err != nil {
		writeError(ctx, err)
		return
	}
	resp := moveResponse{
		Applied: out.Report.Applied,
		SAN:     out.Report.SAN,
		Outcome: string(out.Report.Outcome),
		Game:    game.ToDocument(out.Session),
	}
	if out.AIReport != nil {
		resp.AISAN = out.AIReport.SAN
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleDrawOffer(ctx *fasthttp.RequestCtx) {
	var req gamedto.DrawOfferRequest
	if !decode(ctx, &req) {
		return
	}
	if req.GameID == "" || req.UserID == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id and user_id are required", "bad_request")
		return
	}
	sess, err := s.svc.OfferDraw(ctx, req.GameID, req.UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

func (s *Server) handleRespondOffer(ctx *fasthttp.RequestCtx) {
	var req gamedto.DrawResponseRequest
	if !decode(ctx, &req) {
		return
	}
	if req.GameID == "" || req.UserID == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id and user_id are required", "bad_request")
		return
	}
	sess, err := s.svc.RespondToOffer(ctx, req.GameID, req.UserID, req.Accept)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

func (s *Server) handleResign(ctx *fasthttp.RequestCtx) {
	var req gamedto.ResignRequest
	if !decode(ctx, &req) {
		return
	}
	if req.GameID == "" || req.UserID == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id and user_id are required", "bad_request")
		return
	}
	sess, err := s.svc.Resign(ctx, req.GameID, req.UserID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

func (s *Server) handleGetGame(ctx *fasthttp.RequestCtx) {
	id := string(ctx.QueryArgs().Peek("game_id"))
	if strings.TrimSpace(id) == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "game_id is required", "bad_request")
		return
	}
	sess, err := s.svc.GetGame(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, game.ToDocument(sess))
}

func (s *Server) handleControllerRegister(ctx *fasthttp.RequestCtx) {
	var req gamedto.ControllerRegisterRequest
	if !decode(ctx, &req) {
		return
	}
	if strings.TrimSpace(req.BoardID) == "" || strings.TrimSpace(req.BoardVersion) == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "board_id and board_version are required", "bad_request")
		return
	}
	rec, err := s.svc.RegisterController(ctx, req.BoardID, req.BoardVersion)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, rec)
}

func (s *Server) handleControllerHeartbeat(ctx *fasthttp.RequestCtx) {
	var req gamedto.ControllerHeartbeatRequest
	if !decode(ctx, &req) {
		return
	}
	if strings.TrimSpace(req.BoardID) == "" {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "board_id is required", "bad_request")
		return
	}
	rec, err := s.svc.HeartbeatController(ctx, req.BoardID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, rec)
}

func decode(ctx *fasthttp.RequestCtx, out any) bool {
	if err := json.Unmarshal(ctx.PostBody(), out); err != nil {
		writeErrorBody(ctx, fasthttp.StatusBadRequest, "invalid json body", "bad_request")
		return false
	}
	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("http_encode_error", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, store.ErrGameNotFound):
		writeErrorBody(ctx, fasthttp.StatusNotFound, err.Error(), codeFor(err))
	case service.IsDomainError(err):
		writeErrorBody(ctx, fasthttp.StatusBadRequest, err.Error(), codeFor(err))
	default:
		obslog.L().Error("http_internal_error", zap.Error(err))
		writeErrorBody(ctx, fasthttp.StatusInternalServerError, "internal error", "internal")
	}
}

func writeErrorBody(ctx *fasthttp.RequestCtx, status int, msg, code string) {
	writeJSON(ctx, status, gamedto.ErrorResponse{Error: msg, Code: code})
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, game.ErrMalformedNotation):
		return "malformed_notation"
	case errors.Is(err, game.ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, game.ErrGameNotInProgress):
		return "game_not_in_progress"
	case errors.Is(err, game.ErrNotPlayersTurn):
		return "not_players_turn"
	case errors.Is(err, game.ErrUserNotInGame):
		return "user_not_in_game"
	case errors.Is(err, game.ErrSlotNotOpen):
		return "slot_not_open"
	case errors.Is(err, game.ErrReservedPlayerID):
		return "reserved_player_id"
	case errors.Is(err, game.ErrDrawOfferAlreadyMade):
		return "draw_offer_already_made"
	case errors.Is(err, game.ErrNothingToRespondTo):
		return "nothing_to_respond_to"
	case errors.Is(err, game.ErrTwoAIPlayers):
		return "two_ai_players"
	case errors.Is(err, game.ErrNegativeTime):
		return "negative_time"
	case errors.Is(err, game.ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, store.ErrGameNotFound):
		return "game_not_found"
	case errors.Is(err, store.ErrControllerActive):
		return "controller_active"
	case errors.Is(err, store.ErrControllerUnknown):
		return "controller_unknown"
	case errors.Is(err, service.ErrUnknownIdentity):
		return "unknown_identity"
	default:
		return "internal"
	}
}

func secToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
