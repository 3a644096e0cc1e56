// Package ws is the session channel: a client sends JOIN, receives MY_AGENT and
// then a STATE frame every tick, and steers its agent with MOVE_TO. Closing the
// connection removes the agent.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	stateQueue       = 8
)

type Server struct {
	world *world.World
	log   *zap.Logger

	upgrader    websocket.Upgrader
	joinTimeout time.Duration
}

func NewServer(w *world.World, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		world: w,
		log:   logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		joinTimeout: handshakeTimeout,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := make(chan []byte, stateQueue)
		agent, ok := s.handshake(conn, out)
		if !ok {
			return
		}
		log := s.log.With(zap.String("agent_id", agent.ID))
		log.Info("session joined", zap.String("name", agent.Name))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		ctrl := make(chan []byte, 8)

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-ctrl:
				case frame, ok := <-out:
					if !ok {
						closeWith(conn, websocket.CloseGoingAway, "world stopped")
						cancel()
						_ = conn.Close()
						return
					}
					b = frame
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if code, reason := s.handleMessage(agent.ID, msg); code != "" {
				select {
				case ctrl <- errorFrame(code, reason):
				default:
				}
			}
		}

		cancel()
		<-writerDone
		s.leave(agent.ID)
		log.Info("session closed")
	}
}

// handleMessage applies one client frame and returns an error code for the client
// when the frame is rejected.
func (s *Server) handleMessage(agentID string, msg []byte) (code, reason string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ErrProtoBadRequest, "malformed message"
	}
	switch base.Type {
	case protocol.TypeMoveTo:
		var mv protocol.MoveToMsg
		if err := json.Unmarshal(msg, &mv); err != nil {
			return protocol.ErrProtoBadRequest, "malformed MOVE_TO"
		}
		select {
		case s.world.Move() <- world.MoveRequest{AgentID: agentID, Target: world.Vec2{X: mv.Target.X, Y: mv.Target.Y}}:
		default:
			return protocol.ErrWorldBusy, "move queue full"
		}
		return "", ""
	case protocol.TypeJoin:
		return protocol.ErrBadRequest, "already joined"
	default:
		return protocol.ErrProtoBadRequest, "unknown message type " + base.Type
	}
}

func (s *Server) handshake(conn *websocket.Conn, out chan []byte) (protocol.AgentState, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.AgentState{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeJoin {
		closeWith(conn, websocket.ClosePolicyViolation, "expected JOIN")
		return protocol.AgentState{}, false
	}
	var join protocol.JoinMsg
	if err := json.Unmarshal(msg, &join); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad JOIN")
		return protocol.AgentState{}, false
	}
	if join.ProtocolVersion != "" && join.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return protocol.AgentState{}, false
	}

	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{
		Name:       join.Name,
		Color:      join.Color,
		Controller: world.ControllerSession,
		Out:        out,
		Resp:       respCh,
	}:
	default:
		_ = writeJSON(conn, errorMsg(protocol.ErrWorldBusy, "join queue full"))
		closeWith(conn, websocket.CloseTryAgainLater, "server busy")
		return protocol.AgentState{}, false
	}

	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(s.joinTimeout):
		go s.reapLateJoin(respCh)
		closeWith(conn, websocket.CloseTryAgainLater, "world not responding")
		return protocol.AgentState{}, false
	}
	if resp.Err != nil {
		_ = writeJSON(conn, errorMsg(protocol.ErrConflict, resp.Err.Error()))
		return protocol.AgentState{}, false
	}

	if err := writeJSON(conn, protocol.MyAgentMsg{
		Type:            protocol.TypeMyAgent,
		ProtocolVersion: protocol.Version,
		Agent:           resp.Agent,
	}); err != nil {
		s.leave(resp.Agent.ID)
		return protocol.AgentState{}, false
	}
	return resp.Agent, true
}

// reapLateJoin removes an agent whose JOIN was still queued when the client
// was turned away.
func (s *Server) reapLateJoin(respCh <-chan world.JoinResponse) {
	select {
	case resp := <-respCh:
		if resp.Err == nil {
			s.log.Info("removing agent joined after handshake timeout", zap.String("agent_id", resp.Agent.ID))
			s.leave(resp.Agent.ID)
		}
	case <-s.world.Done():
	}
}

func (s *Server) leave(agentID string) {
	select {
	case s.world.Leave() <- agentID:
	case <-s.world.Done():
	case <-time.After(time.Second):
		s.log.Warn("leave dropped, world not draining", zap.String("agent_id", agentID))
	}
}

func errorMsg(code, reason string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: reason}
}

func errorFrame(code, reason string) []byte {
	b, _ := json.Marshal(errorMsg(code, reason))
	return b
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
