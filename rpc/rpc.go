package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers service under the name "GameService".
func NewServer(addr string, service *GameService) (*Server, error) {
	rs := rpc.NewServer()
	if err := rs.RegisterName("GameService", service); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rs,
	}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// StatsReader is the stats lookup used by GameService.
type StatsReader interface {
	GetUserStats(ctx context.Context, userID string) (*models.UserStats, error)
}

// SessionLister lists live sessions.
type SessionLister interface {
	Sessions() []models.SessionSummary
}

// GameService is the struct that exposes RPC methods.
type GameService struct {
	stats    StatsReader
	sessions SessionLister
}

func NewGameService(stats StatsReader, sessions SessionLister) *GameService {
	return &GameService{stats: stats, sessions: sessions}
}

type GetUserStatsArgs struct {
	UserID string
}

type GetUserStatsReply struct {
	Stats models.UserStats
}

// GetUserStats follows the net/rpc signature: exported args, pointer reply, error result.
func (gs *GameService) GetUserStats(args *GetUserStatsArgs, reply *GetUserStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := gs.stats.GetUserStats(ctx, args.UserID)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

// ListSessionsArgs filters by Status when it is set.
type ListSessionsArgs struct {
	Status models.Status
}

type ListSessionsReply struct {
	Sessions []models.SessionSummary
}

func (gs *GameService) ListSessions(args *ListSessionsArgs, reply *ListSessionsReply) error {
	all := gs.sessions.Sessions()
	if args.Status == "" {
		reply.Sessions = all
		return nil
	}
	reply.Sessions = make([]models.SessionSummary, 0, len(all))
	for _, s := range all {
		if s.Status == args.Status {
			reply.Sessions = append(reply.Sessions, s)
		}
	}
	return nil
}
