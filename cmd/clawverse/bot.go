package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
)

var botFlags struct {
	url       string
	name      string
	moveEvery uint64
	width     float64
	height    float64
	maxTicks  uint64
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Join a running server as a session agent and wander",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		ctx, cancel := signalContext()
		defer cancel()
		return runBot(ctx, logger)
	},
}

func init() {
	f := botCmd.Flags()
	f.StringVar(&botFlags.url, "url", "ws://localhost:8080/v1/ws", "ws url")
	f.StringVar(&botFlags.name, "name", "bot", "agent name")
	f.Uint64Var(&botFlags.moveEvery, "move-every", 200, "ticks between MOVE_TO requests")
	f.Float64Var(&botFlags.width, "width", 800, "world width used for random targets")
	f.Float64Var(&botFlags.height, "height", 600, "world height used for random targets")
	f.Uint64Var(&botFlags.maxTicks, "ticks", 0, "disconnect after this many STATE frames (0 = run until interrupted)")
}

func runBot(ctx context.Context, logger *zap.Logger) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, botFlags.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(protocol.JoinMsg{
		Type:            protocol.TypeJoin,
		ProtocolVersion: protocol.Version,
		Name:            botFlags.name,
	}); err != nil {
		return fmt.Errorf("send JOIN: %w", err)
	}

	var (
		self   string
		frames uint64
	)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeMyAgent:
			var m protocol.MyAgentMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			self = m.Agent.ID
			logger.Info("joined", zap.String("agent_id", self), zap.String("name", m.Agent.Name))

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			frames++
			handleState(conn, logger, self, &st)
			if botFlags.maxTicks != 0 && frames >= botFlags.maxTicks {
				return nil
			}

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				logger.Warn("server error", zap.String("code", em.Code), zap.String("message", em.Message))
			}
		}
	}
}

func handleState(conn *websocket.Conn, logger *zap.Logger, self string, st *protocol.StateMsg) {
	for id, a := range st.Agents {
		if id != self && a.Say != "" {
			logger.Debug("heard", zap.String("from", a.Name), zap.String("say", a.Say))
		}
	}
	me, ok := st.Agents[self]
	if !ok || botFlags.moveEvery == 0 || st.Tick%botFlags.moveEvery != 0 || me.Status == string(world.StatusMoving) {
		return
	}
	target := protocol.Vec2{X: rand.Float64() * botFlags.width, Y: rand.Float64() * botFlags.height}
	if err := conn.WriteJSON(protocol.MoveToMsg{Type: protocol.TypeMoveTo, ProtocolVersion: protocol.Version, Target: target}); err != nil {
		logger.Warn("send MOVE_TO", zap.Error(err))
		return
	}
	logger.Info("moving", zap.Float64("x", target.X), zap.Float64("y", target.Y))
}
