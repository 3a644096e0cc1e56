// Package observer serves read-only watchers: a bootstrap document with the
// world parameters and a websocket that streams STATE frames without joining.
package observer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// BootstrapResponse tells a renderer how to size and pace its view.
type BootstrapResponse struct {
	ProtocolVersion string  `json:"protocol_version"`
	WorldID         string  `json:"world_id"`
	Tick            uint64  `json:"tick"`
	TickRateHz      int     `json:"tick_rate_hz"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger.Named("observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		cfg := s.world.Config()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(BootstrapResponse{
			ProtocolVersion: protocol.Version,
			WorldID:         cfg.ID,
			Tick:            s.world.CurrentTick(),
			TickRateHz:      cfg.TickRateHz,
			Width:           cfg.Width,
			Height:          cfg.Height,
		})
	}
}

// WSHandler streams one STATE frame per tick until the watcher disconnects.
// Frames the watcher cannot keep up with are replaced by newer ones.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id := fmt.Sprintf("O%d", s.nextID.Add(1))
		frames := make(chan []byte, 8)
		if !s.attach(id, frames) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.detach(id)
		s.log.Debug("observer attached", zap.String("observer_id", id))

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				closeWith(conn, websocket.CloseNormalClosure, "bye")
				return
			case b, ok := <-frames:
				if !ok {
					closeWith(conn, websocket.CloseGoingAway, "world stopped")
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					s.log.Debug("observer write failed", zap.String("observer_id", id), zap.Error(err))
					return
				}
			}
		}
	}
}

const (
	idleTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

func (s *Server) attach(id string, frames chan []byte) bool {
	select {
	case s.world.ObserverJoin() <- world.ObserverJoinRequest{ID: id, Out: frames}:
		return true
	default:
		return false
	}
}

// detach never blocks; a stopping world drops its observers anyway.
func (s *Server) detach(id string) {
	select {
	case s.world.ObserverLeave() <- id:
	default:
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
