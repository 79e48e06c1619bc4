package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket" // Gorilla is the test CLIENT
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/gateway"
	"github.com/pricewatch/crypto-notify/cmd/gateway/internal/hub"
	"github.com/pricewatch/crypto-notify/pkg/auth"
	"github.com/pricewatch/crypto-notify/pkg/models"
)

const secret = "integration-secret"

func startServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	wsHub := hub.NewHub(zap.NewNop())
	verifier := auth.NewVerifier(secret)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, authenticated := verifier.SubjectID(r.URL.Query().Get("token"))

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		client := gateway.NewClient(conn, wsHub, zap.NewNop())
		wsHub.Register(client, subjectID, authenticated)
		client.Start()
	}))
	t.Cleanup(server.Close)
	return server, wsHub
}

func tokenFor(t *testing.T, subject int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": float64(subject)})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func connectWS(t *testing.T, serverURL, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) hub.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env hub.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func waitForClients(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOwnerReceivesTargetedUpdate(t *testing.T) {
	server, wsHub := startServer(t)

	owner := connectWS(t, server.URL, tokenFor(t, 7))
	waitForClients(t, wsHub, 1)

	wsHub.Dispatch(models.ChangeEvent{
		UserID:           7,
		Symbol:           "BTC",
		OldPrice:         48000,
		NewPrice:         50000,
		PercentageChange: 4.17,
		Timestamp:        time.Now(),
	})

	env := readEnvelope(t, owner)
	assert.Equal(t, hub.EventPriceUpdate, env.Event)
	assert.Equal(t, "BTC", env.Data.Symbol)
	assert.Equal(t, int64(7), env.Data.UserID)
}

func TestOtherUserDoesNotReceiveTargetedUpdate(t *testing.T) {
	server, wsHub := startServer(t)

	other := connectWS(t, server.URL, tokenFor(t, 8))
	waitForClients(t, wsHub, 1)

	wsHub.Dispatch(models.ChangeEvent{UserID: 7, Symbol: "BTC", Timestamp: time.Now()})

	other.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "expected read timeout, update must not reach user 8")
}

func TestSignificantChangeBroadcastsToAnonymous(t *testing.T) {
	server, wsHub := startServer(t)

	// Garbage token verifies like no token at all: anonymous, not rejected
	anon := connectWS(t, server.URL, "not-a-valid-token")
	waitForClients(t, wsHub, 1)

	wsHub.Dispatch(models.ChangeEvent{
		UserID:           7,
		Symbol:           "BTC",
		OldPrice:         40000,
		NewPrice:         50000,
		PercentageChange: 25,
		Timestamp:        time.Now(),
		IsSignificant:    true,
	})

	env := readEnvelope(t, anon)
	assert.Equal(t, hub.EventSignificantChange, env.Event)
	assert.Equal(t, 25.0, env.Data.PercentageChange)
}

func TestDisconnectRemovesClient(t *testing.T) {
	server, wsHub := startServer(t)

	conn := connectWS(t, server.URL, tokenFor(t, 7))
	waitForClients(t, wsHub, 1)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wsHub.ClientCount() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
