package network

import (
	"time"

	"github.com/wfunc/quizserver/models"
)

// Client to server.
const (
	MsgTypeHeartbeat         = 1
	MsgTypeCreateUser        = 100
	MsgTypeGetUserStats      = 101
	MsgTypeCreateRoom        = 102
	MsgTypeJoinRoom          = 103
	MsgTypeListRooms         = 104
	MsgTypeLeaveRoom         = 105
	MsgTypeStartGame         = 106
	MsgTypeSelectQuestion    = 107
	MsgTypeBuzzIn            = 108
	MsgTypeSubmitAnswer      = 109
	MsgTypeSubmitWager       = 110
	MsgTypeSubmitFinalWager  = 111
	MsgTypeSubmitFinalAnswer = 112
)

var inboundNames = map[uint16]string{
	MsgTypeHeartbeat:         "heartbeat",
	MsgTypeCreateUser:        "create_user",
	MsgTypeGetUserStats:      "get_user_stats",
	MsgTypeCreateRoom:        "create_room",
	MsgTypeJoinRoom:          "join_room",
	MsgTypeListRooms:         "list_rooms",
	MsgTypeLeaveRoom:         "leave_room",
	MsgTypeStartGame:         "start_game",
	MsgTypeSelectQuestion:    "select_question",
	MsgTypeBuzzIn:            "buzz_in",
	MsgTypeSubmitAnswer:      "submit_answer",
	MsgTypeSubmitWager:       "submit_wager",
	MsgTypeSubmitFinalWager:  "submit_final_wager",
	MsgTypeSubmitFinalAnswer: "submit_final_answer",
}

// InboundName labels a client message id for logs and metrics.
func InboundName(msgID uint16) string {
	if name, ok := inboundNames[msgID]; ok {
		return name
	}
	return "unknown"
}

// Server to client.
const (
	MsgTypeUserCreated        = 200
	MsgTypeUserStats          = 201
	MsgTypeRoomCreated        = 202
	MsgTypeRoomJoined         = 203
	MsgTypeRoomLeft           = 204
	MsgTypeRoomState          = 205
	MsgTypeRoomList           = 206
	MsgTypePlayerJoined       = 207
	MsgTypePlayerLeft         = 208
	MsgTypePlayerDisconnected = 209
	MsgTypePlayerReconnected  = 210
	MsgTypeGameStarted        = 211
	MsgTypeQuestionSelected   = 212
	MsgTypeReadingPhase       = 213
	MsgTypeBuzzerActive       = 214
	MsgTypePlayerBuzzed       = 215
	MsgTypeAnswerResult       = 216
	MsgTypeDailyDouble        = 217
	MsgTypeQuestionComplete   = 218
	MsgTypeFinalStart         = 219
	MsgTypeFinalWagerPhase    = 220
	MsgTypeFinalAnswerPhase   = 221
	MsgTypeFinalReveal        = 222
	MsgTypeGameOver           = 223
	MsgTypeError              = 299
)

// Inbound payloads.

// CreateUserRequest registers a display name. A blank UserID is minted by the server.
type CreateUserRequest struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

type GetUserStatsRequest struct {
	UserID string `json:"userId"`
}

type CreateRoomRequest struct {
	UserID   string                  `json:"userId"`
	UserName string                  `json:"userName"`
	Config   *models.ConfigOverrides `json:"config,omitempty"`
}

type JoinRoomRequest struct {
	RoomCode    string `json:"roomCode"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	AsSpectator bool   `json:"asSpectator,omitempty"`
}

type LeaveRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type StartGameRequest struct {
	RoomCode string `json:"roomCode"`
}

type SelectQuestionRequest struct {
	QuestionID string `json:"questionId"`
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

// WagerRequest serves both wager messages. Wager is decoded as a number so fractional
// amounts can be rejected instead of truncated.
type WagerRequest struct {
	Wager float64 `json:"wager"`
}

// Outbound payloads.

type UserCreated struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type UserStatsPayload struct {
	Stats *models.UserStats `json:"stats"`
}

type RoomCreated struct {
	RoomCode string                 `json:"roomCode"`
	PlayerID string                 `json:"playerId"`
	Room     models.SessionSnapshot `json:"room"`
}

// RoomJoined carries a nil PlayerID for spectators.
type RoomJoined struct {
	RoomCode string                 `json:"roomCode"`
	PlayerID *string                `json:"playerId"`
	Room     models.SessionSnapshot `json:"room"`
}

type RoomLeft struct {
	RoomCode string `json:"roomCode"`
}

type RoomState struct {
	Room       models.SessionSnapshot `json:"room"`
	ServerTime time.Time              `json:"serverTime"`
}

type RoomList struct {
	Rooms []models.SessionSummary `json:"rooms"`
}

type PlayerJoined struct {
	Player models.PlayerView `json:"player"`
}

type PlayerLeft struct {
	PlayerID string `json:"playerId"`
}

type PlayerDisconnected struct {
	PlayerID          string    `json:"playerId"`
	ReconnectDeadline time.Time `json:"reconnectDeadline"`
}

type PlayerReconnected struct {
	PreviousPlayerID string            `json:"previousPlayerId"`
	Player           models.PlayerView `json:"player"`
}

type GameStarted struct {
	Room        models.SessionSnapshot `json:"room"`
	FirstPlayer string                 `json:"firstPlayer"`
}

type QuestionSelected struct {
	Question        *models.PublicQuestion `json:"question"`
	SelectingPlayer string                 `json:"selectingPlayer"`
}

type ReadingPhase struct {
	Question    string    `json:"question"`
	Value       int       `json:"value"`
	PhaseEndsAt time.Time `json:"phaseEndsAt"`
}

type BuzzerActive struct {
	PhaseEndsAt time.Time `json:"phaseEndsAt"`
}

type PlayerBuzzed struct {
	PlayerID    string    `json:"playerId"`
	PlayerName  string    `json:"playerName"`
	PhaseEndsAt time.Time `json:"phaseEndsAt"`
}

type AnswerOutcome struct {
	Answer      string `json:"answer"`
	Correct     bool   `json:"correct"`
	ScoreDelta  int    `json:"scoreDelta"`
	NewScore    int    `json:"newScore"`
	DailyDouble bool   `json:"dailyDouble"`
}

type AnswerResult struct {
	PlayerID         string        `json:"playerId"`
	Result           AnswerOutcome `json:"result"`
	NextTurnPlayerID string        `json:"nextTurnPlayerId"`
}

// DailyDouble is sent when the holder is chosen (no deadline) and again once the answer
// window opens.
type DailyDouble struct {
	Question    *models.PublicQuestion `json:"question"`
	PlayerID    string                 `json:"playerId"`
	MinWager    int                    `json:"minWager"`
	MaxWager    int                    `json:"maxWager"`
	Wager       *int                   `json:"wager,omitempty"`
	PhaseEndsAt *time.Time             `json:"phaseEndsAt"`
}

type QuestionComplete struct {
	QuestionID    string                   `json:"questionId"`
	CorrectAnswer string                   `json:"correctAnswer"`
	Attempts      []models.QuestionAttempt `json:"attempts"`
}

type FinalStart struct {
	Category string `json:"category"`
}

type FinalWagerLimit struct {
	PlayerID     string `json:"playerId"`
	MinWager     int    `json:"minWager"`
	MaxWager     int    `json:"maxWager"`
	CurrentScore int    `json:"currentScore"`
}

type FinalWagerPhase struct {
	Category    string            `json:"category"`
	PhaseEndsAt time.Time         `json:"phaseEndsAt"`
	Limits      []FinalWagerLimit `json:"limits"`
}

type FinalAnswerPhase struct {
	Category    string    `json:"category"`
	Question    string    `json:"question"`
	PhaseEndsAt time.Time `json:"phaseEndsAt"`
}

type FinalReveal struct {
	CorrectAnswer string               `json:"correctAnswer"`
	Reveals       []models.FinalReveal `json:"reveals"`
	WinnerID      string               `json:"winnerId"`
}

type GameOver struct {
	Winner       *models.PlayerView  `json:"winner"`
	AllPlayers   []models.PlayerView `json:"allPlayers"`
	GameResult   models.GameResult   `json:"gameResult"`
	StatsUpdated bool                `json:"statsUpdated"`
}

type ErrorPayload struct {
	Kind    models.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}
