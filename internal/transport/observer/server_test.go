package observer

import (
	"context"
	"encoding/json"
	"net/http"
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

func TestObserverStreamsStateWithoutJoining(t *testing.T) {
	w, err := world.New(world.WorldConfig{TickRateHz: 100, Width: 320, Height: 240}, world.Options{Store: wiki.NewMemoryStore()})
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

	s := NewServer(w, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bootstrap")
	require.NoError(t, err)
	var boot BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&boot))
	resp.Body.Close()
	assert.Equal(t, 320.0, boot.Width)
	assert.Equal(t, 100, boot.TickRateHz)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var st protocol.StateMsg
	require.NoError(t, json.Unmarshal(msg, &st))
	assert.Equal(t, protocol.TypeState, st.Type)
	assert.Empty(t, st.Agents)
	assert.Equal(t, 0, w.Metrics().Agents)
}

func TestObserverClosedWhenWorldStops(t *testing.T) {
	w, err := world.New(world.WorldConfig{TickRateHz: 100}, world.Options{Store: wiki.NewMemoryStore()})
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

	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	cancel()
	<-done
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
