package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/skip2/go-qrcode"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/orchestrator"
	quiz_rpc "github.com/wfunc/quizserver/rpc"
	"github.com/wfunc/quizserver/rules"
	"github.com/wfunc/quizserver/services"
	"github.com/wfunc/quizserver/session"
)

type Options struct {
	HTTPAddress       string
	AllowedOrigins    []string
	SendQueueSize     int
	HeartbeatInterval time.Duration
	JoinURL           string
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	orchestrator   *orchestrator.Orchestrator
	playerService  *services.PlayerService
	metrics        *monitor.Metrics
	rpcServer      *quiz_rpc.Server
	httpServer     *http.Server
}

// NewGameServer wires the HTTP and websocket surface. rpcServer may be nil.
func NewGameServer(
	opts Options,
	sessions *session.Manager,
	orch *orchestrator.Orchestrator,
	players *services.PlayerService,
	metrics *monitor.Metrics,
	rpcServer *quiz_rpc.Server,
) *GameServer {
	s := &GameServer{
		opts:           opts,
		sessionManager: sessions,
		orchestrator:   orch,
		playerService:  players,
		metrics:        metrics,
		rpcServer:      rpcServer,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Routes builds the HTTP handler.
func (s *GameServer) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{code}/qr", s.handleSessionQR).Methods(http.MethodGet)
	r.HandleFunc("/stats/{userId}", s.handleUserStats).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}

	s.httpServer = &http.Server{
		Addr:              s.opts.HTTPAddress,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.opts.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every live connection.
func (s *GameServer) Shutdown(ctx context.Context) error {
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.sessionManager.CloseAll()
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.opts.SendQueueSize)
	if s.opts.HeartbeatInterval > 0 {
		wsConn.SetHeartbeat(s.opts.HeartbeatInterval)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.metrics.IncConnections()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.orchestrator.Disconnect(sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.metrics.DecConnections()
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.metrics.IncMessagesReceived(network.InboundName(packet.MsgID))
	if err := s.dispatch(sess, packet); err != nil {
		s.sendError(sess, err)
	}
	s.metrics.ObserveMessageLatency(time.Since(start))
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return models.Errorf(models.KindInvalidInput, "malformed payload: %v", err)
	}
	return nil
}

// dispatch routes one packet to the orchestrator. A returned error goes back to the caller only.
func (s *GameServer) dispatch(sess *session.Session, packet *network.Packet) error {
	id := sess.GetID()
	userID, roomCode := sess.Identity()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		return nil

	case network.MsgTypeCreateUser:
		var req network.CreateUserRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		created, err := s.orchestrator.CreateUser(id, req)
		if err != nil {
			return err
		}
		sess.Bind(created, roomCode)
		return nil

	case network.MsgTypeGetUserStats:
		var req network.GetUserStatsRequest
		if len(packet.Data) > 0 {
			if err := decode(packet.Data, &req); err != nil {
				return err
			}
		}
		if req.UserID == "" {
			req.UserID = userID
		}
		return s.orchestrator.GetUserStats(context.Background(), id, req.UserID)

	case network.MsgTypeCreateRoom:
		var req network.CreateRoomRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		if req.UserID == "" {
			req.UserID = userID
		}
		code, err := s.orchestrator.CreateSession(id, req)
		if err != nil {
			return err
		}
		sess.Bind(req.UserID, code)
		return nil

	case network.MsgTypeJoinRoom:
		var req network.JoinRoomRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		if req.UserID == "" {
			req.UserID = userID
		}
		code, _, err := s.orchestrator.JoinSession(id, req)
		if err != nil {
			return err
		}
		sess.Bind(req.UserID, code)
		return nil

	case network.MsgTypeListRooms:
		return s.orchestrator.ListSessions(id)

	case network.MsgTypeLeaveRoom:
		if err := s.orchestrator.LeaveSession(id); err != nil {
			return err
		}
		sess.Bind(userID, "")
		return nil

	case network.MsgTypeStartGame:
		return s.orchestrator.StartGame(id)

	case network.MsgTypeSelectQuestion:
		var req network.SelectQuestionRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.orchestrator.SelectQuestion(id, req.QuestionID)

	case network.MsgTypeBuzzIn:
		return s.orchestrator.BuzzIn(id)

	case network.MsgTypeSubmitAnswer:
		var req network.SubmitAnswerRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.orchestrator.SubmitAnswer(id, req.Answer)

	case network.MsgTypeSubmitWager:
		var req network.WagerRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.orchestrator.SubmitWager(id, req.Wager)

	case network.MsgTypeSubmitFinalWager:
		var req network.WagerRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.orchestrator.SubmitFinalWager(id, req.Wager)

	case network.MsgTypeSubmitFinalAnswer:
		var req network.SubmitAnswerRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.orchestrator.SubmitFinalAnswer(id, req.Answer)

	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return models.Errorf(models.KindInvalidInput, "unknown message type %d", packet.MsgID)
	}
}

func (s *GameServer) sendError(sess *session.Session, err error) {
	kind := models.KindOf(err)
	message := err.Error()
	if kind == models.KindInternal {
		logger.Log.Errorf("session %s: %v", sess.GetID(), err)
		message = "internal error"
	}
	data, _ := json.Marshal(network.ErrorPayload{Kind: kind, Message: message})
	if err := sess.Send(network.MsgTypeError, data); err != nil {
		logger.Log.Warnf("error reply to %s failed: %v", sess.GetID(), err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warnf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := models.KindOf(err)
	switch kind {
	case models.KindNotFound:
		status = http.StatusNotFound
	case models.KindInvalidInput:
		status = http.StatusBadRequest
	}
	message := err.Error()
	if kind == models.KindInternal {
		logger.Log.Errorf("http: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, network.ErrorPayload{Kind: kind, Message: message})
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sessions":    len(s.orchestrator.Sessions()),
		"connections": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, network.RoomList{Rooms: s.orchestrator.Sessions()})
}

// handleSessionQR renders the join link of a live session as a PNG.
func (s *GameServer) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	code := rules.NormalizeCode(mux.Vars(r)["code"])
	found := false
	for _, summary := range s.orchestrator.Sessions() {
		if summary.Code == code {
			found = true
			break
		}
	}
	if !found {
		writeError(w, models.Errorf(models.KindNotFound, "session %s not found", code))
		return
	}

	png, err := qrcode.Encode(s.opts.JoinURL+code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *GameServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.playerService.GetUserStats(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, network.UserStatsPayload{Stats: stats})
}

func (s *GameServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, models.Errorf(models.KindInvalidInput, "limit must be a number"))
			return
		}
		limit = n
	}
	board, err := s.playerService.GetLeaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": board})
}
