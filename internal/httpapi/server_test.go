package httpapi

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"

	"github.com/robochess/server/internal/game"
	"github.com/robochess/server/internal/service"
	"github.com/robochess/server/internal/store"
	"github.com/robochess/server/pkg/gamedto"
)

func newTestHandler(t *testing.T) fasthttp.RequestHandler {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := service.New(store.NewGames(rdb, 0), store.NewControllers(rdb, 30*time.Second))
	return NewServer(svc).Handler()
}

func doRequest(t *testing.T, h fasthttp.RequestHandler, method, uri string, body any) *fasthttp.RequestCtx {
	t.Helper()
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req.SetBody(raw)
	}
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	h(&ctx)
	return &ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx, out any) {
	t.Helper()
	if err := json.Unmarshal(ctx.Response.Body(), out); err != nil {
		t.Fatalf("decode response %q: %v", ctx.Response.Body(), err)
	}
}

func createTestGame(t *testing.T, h fasthttp.RequestHandler) string {
	t.Helper()
	ctx := doRequest(t, h, "POST", "/creategame", gamedto.CreateGameRequest{
		Creator: "p1", White: "p1", Black: "p2",
	})
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("creategame status %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var doc game.Document
	decodeBody(t, ctx, &doc)
	if doc.ID == "" {
		t.Fatalf("empty game id in %s", ctx.Response.Body())
	}
	return doc.ID
}

func TestCreateAndFetchGame(t *testing.T) {
	h := newTestHandler(t)
	id := createTestGame(t, h)

	ctx := doRequest(t, h, "GET", fmt.Sprintf("/game?game_id=%s", id), nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("get status %d", ctx.Response.StatusCode())
	}
	var doc game.Document
	decodeBody(t, ctx, &doc)
	if doc.ID != id || !doc.InProgress || doc.Turn != "w" {
		t.Fatalf("doc = %+v", doc)
	}

	missing := doRequest(t, h, "GET", "/game?game_id=nope", nil)
	if missing.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("missing game status %d", missing.Response.StatusCode())
	}
	var apiErr gamedto.ErrorResponse
	decodeBody(t, missing, &apiErr)
	if apiErr.Code != "game_not_found" {
		t.Fatalf("error = %+v", apiErr)
	}
}

func TestMakeMoveEndpoint(t *testing.T) {
	h := newTestHandler(t)
	id := createTestGame(t, h)

	ctx := doRequest(t, h, "POST", "/makemove", gamedto.MoveRequest{GameID: id, UserID: "p1", Move: "e4"})
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("makemove status %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var resp struct {
		Applied bool          `json:"applied"`
		SAN     string        `json:"san"`
		Game    game.Document `json:"game"`
	}
	decodeBody(t, ctx, &resp)
	if !resp.Applied || resp.SAN != "e4" || resp.Game.Turn != "b" {
		t.Fatalf("resp = %+v", resp)
	}

	bad := doRequest(t, h, "POST", "/makemove", gamedto.MoveRequest{GameID: id, UserID: "p2", Move: "Ke5"})
	if bad.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("illegal move status %d", bad.Response.StatusCode())
	}
	var apiErr gamedto.ErrorResponse
	decodeBody(t, bad, &apiErr)
	if apiErr.Code != "illegal_move" {
		t.Fatalf("error = %+v", apiErr)
	}
}

func TestJoinAndDrawEndpoints(t *testing.T) {
	h := newTestHandler(t)

	ctx := doRequest(t, h, "POST", "/creategame", gamedto.CreateGameRequest{
		Creator: "p1", White: "p1", Black: "OPEN", Public: true,
	})
	var doc game.Document
	decodeBody(t, ctx, &doc)
	if doc.FreeSlots != 1 {
		t.Fatalf("free_slots = %d", doc.FreeSlots)
	}

	join := doRequest(t, h, "POST", "/joingame", gamedto.JoinGameRequest{GameID: doc.ID, Side: "b", PlayerID: "p2"})
	if join.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("join status %d: %s", join.Response.StatusCode(), join.Response.Body())
	}

	offer := doRequest(t, h, "POST", "/drawoffer", gamedto.DrawOfferRequest{GameID: doc.ID, UserID: "p1"})
	if offer.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("drawoffer status %d", offer.Response.StatusCode())
	}

	accept := doRequest(t, h, "POST", "/respondoffer", gamedto.DrawResponseRequest{GameID: doc.ID, UserID: "p2", Accept: true})
	if accept.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("respondoffer status %d", accept.Response.StatusCode())
	}
	var final game.Document
	decodeBody(t, accept, &final)
	if final.Result != "1/2-1/2" || !final.GameOver.GameOver {
		t.Fatalf("final doc = %+v", final)
	}
}

func TestResignEndpoint(t *testing.T) {
	h := newTestHandler(t)
	id := createTestGame(t, h)

	ctx := doRequest(t, h, "POST", "/resign", gamedto.ResignRequest{GameID: id, UserID: "p2"})
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("resign status %d", ctx.Response.StatusCode())
	}
	var doc game.Document
	decodeBody(t, ctx, &doc)
	if doc.Result != "1-0" {
		t.Fatalf("result = %q", doc.Result)
	}
}

func TestControllerEndpoints(t *testing.T) {
	h := newTestHandler(t)

	reg := doRequest(t, h, "POST", "/controllerregister", gamedto.ControllerRegisterRequest{
		BoardID: "board-1", BoardVersion: "1.0.0",
	})
	if reg.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("register status %d: %s", reg.Response.StatusCode(), reg.Response.Body())
	}
	var rec store.Controller
	decodeBody(t, reg, &rec)
	if rec.BoardID != "board-1" {
		t.Fatalf("record = %+v", rec)
	}

	again := doRequest(t, h, "POST", "/controllerregister", gamedto.ControllerRegisterRequest{
		BoardID: "board-1", BoardVersion: "1.0.1",
	})
	if again.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("duplicate register status %d", again.Response.StatusCode())
	}

	hb := doRequest(t, h, "POST", "/controllerheartbeat", gamedto.ControllerHeartbeatRequest{BoardID: "board-1"})
	if hb.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("heartbeat status %d", hb.Response.StatusCode())
	}

	unknown := doRequest(t, h, "POST", "/controllerheartbeat", gamedto.ControllerHeartbeatRequest{BoardID: "nope"})
	if unknown.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("unknown heartbeat status %d", unknown.Response.StatusCode())
	}
}

func TestRequestShapeValidation(t *testing.T) {
	h := newTestHandler(t)

	ctx := doRequest(t, h, "POST", "/creategame", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("empty body status %d", ctx.Response.StatusCode())
	}

	badSide := doRequest(t, h, "POST", "/joingame", gamedto.JoinGameRequest{GameID: "g", Side: "white", PlayerID: "p"})
	if badSide.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("bad side status %d", badSide.Response.StatusCode())
	}

	// Slot tokens are not player ids; joining as one must never reach the store.
	for _, id := range []string{"OPEN", "AI"} {
		reserved := doRequest(t, h, "POST", "/joingame", gamedto.JoinGameRequest{GameID: "g", Side: "b", PlayerID: id})
		if reserved.Response.StatusCode() != fasthttp.StatusBadRequest {
			t.Fatalf("join as %q status %d", id, reserved.Response.StatusCode())
		}
		var apiErr gamedto.ErrorResponse
		decodeBody(t, reserved, &apiErr)
		if apiErr.Code != "reserved_player_id" {
			t.Fatalf("join as %q error = %+v", id, apiErr)
		}
	}

	unknown := doRequest(t, h, "GET", "/nope", nil)
	if unknown.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("unknown route status %d", unknown.Response.StatusCode())
	}
}
