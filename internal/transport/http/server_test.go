package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegsharov/converse-server/internal/auth"
	"github.com/olegsharov/converse-server/internal/config"
	"github.com/olegsharov/converse-server/internal/core"
	"github.com/olegsharov/converse-server/internal/events"
	"github.com/olegsharov/converse-server/internal/proto"
	"github.com/olegsharov/converse-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	auth *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "converse",
		Audience: "converse-clients",
		TTL:      time.Hour,
	})
	hub := core.NewHub(st, events.NewPublisher("", "", &logger), &logger)

	cfg := config.Default()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })

	srv := NewServer(hub, authService, st, cfg, &logger, stop)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService}
}

func (e *testEnv) postJSON(t *testing.T, path, token string, body any) *stdhttp.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := stdhttp.NewRequest(stdhttp.MethodPost, e.ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) getJSON(t *testing.T, path, token string, out any) int {
	t.Helper()
	req, err := stdhttp.NewRequest(stdhttp.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := stdhttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	resp := e.postJSON(t, "/api/register", "", map[string]string{
		"username": username,
		"password": "secret123",
	})
	defer resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	var parsed tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotEmpty(t, parsed.Token)
	return parsed.Token
}

func (e *testEnv) identityID(t *testing.T, token, username string) int64 {
	t.Helper()
	var found []identityResponse
	status := e.getJSON(t, "/api/identities/search?q="+username, token, &found)
	require.Equal(t, stdhttp.StatusOK, status)
	require.Len(t, found, 1)
	return found[0].ID
}

func (e *testEnv) dialWS(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "bye") })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), conn, proto.Inbound{Type: msgType, Data: raw}))
}

// awaitWS reads frames until one matches the wanted event name, decoding its
// data into out.
func awaitWS(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var outbound proto.Outbound
		require.NoError(t, wsjson.Read(ctx, conn, &outbound), "waiting for %s", event)
		if outbound.Event != event {
			continue
		}
		if out != nil {
			raw, err := json.Marshal(outbound.Data)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, out))
		}
		return
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := stdhttp.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := stdhttp.Get(env.ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp, err = stdhttp.Get(env.ts.URL + "/ws?token=garbage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}

func TestRESTRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	status := env.getJSON(t, "/api/rooms", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, status)

	status = env.getJSON(t, "/api/conversations", "bad-token", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
}

func TestConversationMessageFlow(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	bobID := env.identityID(t, aliceToken, "bob")

	resp := env.postJSON(t, "/api/conversations", aliceToken, map[string]any{
		"participants": []int64{bobID},
	})
	var conv conversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	require.Len(t, conv.Participants, 2)

	aliceWS := env.dialWS(t, aliceToken)
	bobWS := env.dialWS(t, bobToken)

	sendWS(t, aliceWS, proto.InboundTypeJoin, proto.JoinData{ContainerID: conv.ID})
	awaitWS(t, aliceWS, "channel:joined", nil)
	sendWS(t, bobWS, proto.InboundTypeJoin, proto.JoinData{ContainerID: conv.ID})
	awaitWS(t, bobWS, "channel:joined", nil)

	sendWS(t, aliceWS, proto.InboundTypeSend, proto.SendData{ContainerID: conv.ID, Content: "hi bob"})

	var got proto.EventMessage
	awaitWS(t, bobWS, "message:new", &got)
	assert.Equal(t, "hi bob", got.Message.Content)
	assert.Equal(t, conv.ID, got.ContainerID)

	// The recipient's unread counter moved; the sender's did not.
	var convs []conversationResponse
	status := env.getJSON(t, "/api/conversations", bobToken, &convs)
	require.Equal(t, stdhttp.StatusOK, status)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)

	status = env.getJSON(t, "/api/conversations", aliceToken, &convs)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, 0, convs[0].UnreadCount)

	// History is visible over REST.
	var history []proto.Message
	status = env.getJSON(t, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), bobToken, &history)
	require.Equal(t, stdhttp.StatusOK, status)
	require.Len(t, history, 1)
	assert.Equal(t, "hi bob", history[0].Content)
}

func TestRoomAccessOverREST(t *testing.T) {
	env := newTestEnv(t)

	ownerToken := env.register(t, "owner")
	otherToken := env.register(t, "other")

	resp := env.postJSON(t, "/api/rooms", ownerToken, createRoomRequest{Name: "secret", Private: true})
	var room roomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)

	// Non-members cannot read a private room's history.
	status := env.getJSON(t, fmt.Sprintf("/api/rooms/%d/messages", room.ID), otherToken, nil)
	assert.Equal(t, stdhttp.StatusForbidden, status)

	// Only the owner may add members.
	otherID := env.identityID(t, ownerToken, "other")
	resp = env.postJSON(t, fmt.Sprintf("/api/rooms/%d/members", room.ID), otherToken, addMemberRequest{IdentityID: otherID})
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	resp = env.postJSON(t, fmt.Sprintf("/api/rooms/%d/members", room.ID), ownerToken, addMemberRequest{IdentityID: otherID})
	resp.Body.Close()
	assert.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)

	status = env.getJSON(t, fmt.Sprintf("/api/rooms/%d/messages", room.ID), otherToken, nil)
	assert.Equal(t, stdhttp.StatusOK, status)
}

func TestWebSocketErrorReply(t *testing.T) {
	env := newTestEnv(t)

	token := env.register(t, "alice")
	conn := env.dialWS(t, token)

	// Joining a container that does not exist yields a scoped error and the
	// connection stays usable.
	sendWS(t, conn, proto.InboundTypeJoin, proto.JoinData{ContainerID: 999})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var outbound proto.Outbound
	require.NoError(t, wsjson.Read(ctx, conn, &outbound))
	require.Equal(t, proto.OutboundTypeError, outbound.Type)
	require.NotNil(t, outbound.Error)
	assert.Equal(t, core.ErrCodeNotFound, outbound.Error.Code)

	// Malformed payload is answered at the protocol level.
	sendWS(t, conn, proto.InboundTypeJoin, proto.JoinData{})
	require.NoError(t, wsjson.Read(ctx, conn, &outbound))
	require.NotNil(t, outbound.Error)
	assert.Equal(t, core.ErrCodeBadRequest, outbound.Error.Code)
}
