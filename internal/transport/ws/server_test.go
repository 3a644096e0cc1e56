package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clawverse.ai/internal/protocol"
	"clawverse.ai/internal/sim/world"
	"clawverse.ai/internal/wiki"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.WorldConfig{TickRateHz: 100, Seed: 1}, world.Options{Store: wiki.NewMemoryStore()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(msg)
		require.NoError(t, err)
		if base.Type == typ {
			return msg
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(protocol.JoinMsg{Type: protocol.TypeJoin, Name: "Sam", Color: "#123456"}))

	var mine protocol.MyAgentMsg
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeMyAgent), &mine))
	assert.Equal(t, "Sam", mine.Agent.Name)
	assert.Equal(t, "#123456", mine.Agent.Color)
	assert.Equal(t, "idle", mine.Agent.Status)

	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeState), &st))
	assert.Contains(t, st.Agents, mine.Agent.ID)

	require.NoError(t, conn.WriteJSON(protocol.MoveToMsg{Type: protocol.TypeMoveTo, Target: protocol.Vec2{X: 790, Y: 590}}))
	require.Eventually(t, func() bool {
		a, ok := w.State().Agents[mine.Agent.ID]
		return ok && a.Target != nil && a.Target.X == 790
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"DANCE"}`)))
	var em protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(readUntil(t, conn, protocol.TypeError), &em))
	assert.Equal(t, protocol.ErrProtoBadRequest, em.Code)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := w.State().Agents[mine.Agent.ID]
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHandshakeRequiresJoin(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.MoveToMsg{Type: protocol.TypeMoveTo}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Empty(t, w.State().Agents)
}

func TestLateJoinIsRemoved(t *testing.T) {
	w, err := world.New(world.WorldConfig{TickRateHz: 100, Seed: 1}, world.Options{Store: wiki.NewMemoryStore()})
	require.NoError(t, err)
	s := NewServer(w, nil)
	s.joinTimeout = 20 * time.Millisecond
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.JoinMsg{Type: protocol.TypeJoin, Name: "Late"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseTryAgainLater, ce.Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return w.Metrics().Tick > 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(w.State().Agents) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, w.Metrics().Agents)
}

func TestSessionClosedWhenWorldStops(t *testing.T) {
	w, err := world.New(world.WorldConfig{TickRateHz: 100, Seed: 1}, world.Options{Store: wiki.NewMemoryStore()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	srv := httptest.NewServer(NewServer(w, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(protocol.JoinMsg{Type: protocol.TypeJoin, Name: "Sam"}))
	readUntil(t, conn, protocol.TypeMyAgent)

	cancel()
	<-done
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, websocket.CloseGoingAway, ce.Code)
		return
	}
}
