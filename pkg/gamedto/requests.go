package gamedto

// Request bodies for the game API. Player slots are tokens: "OPEN", "AI", or
// a player id. Sides are "w" / "b".

type CreateGameRequest struct {
	Creator        string  `json:"creator"`
	White          string  `json:"white"`
	Black          string  `json:"black"`
	TimeControlSec float64 `json:"time_control_sec"`
	IncrementSec   float64 `json:"increment_sec"`
	BoardID        string  `json:"board_id"`
	Public         bool    `json:"public"`
}

type JoinGameRequest struct {
	GameID   string `json:"game_id"`
	Side     string `json:"side"`
	PlayerID string `json:"player_id"`
}

type MoveRequest struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
	Move   string `json:"move"`
}

type DrawOfferRequest struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

type DrawResponseRequest struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
	Accept bool   `json:"accept"`
}

type ResignRequest struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

type ControllerRegisterRequest struct {
	BoardID      string `json:"board_id"`
	BoardVersion string `json:"board_version"`
}

type ControllerHeartbeatRequest struct {
	BoardID string `json:"board_id"`
}
