package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/auth"
	"github.com/jason-s-yu/courts/internal/game"
	"github.com/jason-s-yu/courts/internal/models"
	"github.com/jason-s-yu/courts/internal/storage/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowComputer keeps the automatic opponent from moving during a test.
var slowComputer = map[string]interface{}{"autoMoveDelayMs": 600000}

type testServer struct {
	*httptest.Server
	gs    *GameServer
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	signer, err := auth.NewSigner(time.Hour)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := memory.NewStore()
	gs := NewGameServer(ServerOptions{
		Signer:  signer,
		Users:   store,
		States:  store,
		Results: store,
		Logger:  logger,
	})
	srv := httptest.NewServer(gs.Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, gs: gs, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (ts *testServer) guest(t *testing.T) (string, uuid.UUID) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/user/guest", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out tokenResponse
	decode(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token, out.User.ID
}

// createGame starts a game for token and returns its id.
func (ts *testServer) createGame(t *testing.T, token string, req createGameRequest) uuid.UUID {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/game/create", token, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		GameID uuid.UUID     `json:"game_id"`
		State  game.Snapshot `json:"state"`
	}
	decode(t, resp, &out)
	return out.GameID
}

// waitSaved waits for the opening state of a game to reach the store.
func waitSaved(t *testing.T, ts *testServer, id uuid.UUID) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := ts.store.LoadGameState(context.Background(), id)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func ownView(t *testing.T, snap game.Snapshot, me uuid.UUID) game.PlayerView {
	t.Helper()
	for _, p := range snap.Players {
		if p.PlayerID == me {
			return p
		}
	}
	t.Fatalf("player %s not seated", me)
	return game.PlayerView{}
}

func TestGuestAndMe(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.guest(t)

	resp := ts.do(t, http.MethodGet, "/user/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		ID          uuid.UUID `json:"id"`
		IsEphemeral bool      `json:"is_ephemeral"`
	}
	decode(t, resp, &me)
	assert.Equal(t, id, me.ID)
	assert.True(t, me.IsEphemeral)

	resp = ts.do(t, http.MethodGet, "/user/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/user/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateUserAndLogin(t *testing.T) {
	ts := newTestServer(t)
	creds := credentialsRequest{Email: "ada@example.com", Password: "hunter2"}

	resp := ts.do(t, http.MethodPost, "/user/create", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created tokenResponse
	decode(t, resp, &created)
	assert.Equal(t, "ada", created.User.Username)
	assert.Empty(t, created.User.Password, "credentials never leave the server")

	resp = ts.do(t, http.MethodPost, "/user/create", "", creds)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/user/create", "", credentialsRequest{Email: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/user/login", "", credentialsRequest{Email: creds.Email, Password: "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/user/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login tokenResponse
	decode(t, resp, &login)
	assert.Equal(t, created.User.ID, login.User.ID)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == authCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, login.Token, cookie.Value)
}

func TestClaimGuest(t *testing.T) {
	ts := newTestServer(t)
	token, id := ts.guest(t)

	resp := ts.do(t, http.MethodPost, "/user/claim", token, credentialsRequest{
		Email: "guest@example.com", Password: "secret", Username: "grace",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claimed tokenResponse
	decode(t, resp, &claimed)
	assert.Equal(t, id, claimed.User.ID, "claiming keeps the id")
	assert.False(t, claimed.User.IsEphemeral)

	resp = ts.do(t, http.MethodPost, "/user/claim", claimed.Token, credentialsRequest{
		Email: "other@example.com", Password: "secret",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "only guests can be claimed")

	resp = ts.do(t, http.MethodPost, "/user/login", "", credentialsRequest{Email: "guest@example.com", Password: "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateGameSignsInGuest(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/game/create", "", createGameRequest{Rules: slowComputer})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := resp.Header.Get(authTokenHeader)
	require.NotEmpty(t, token)

	resp = ts.do(t, http.MethodGet, "/game/list", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var games []gameSummary
	decode(t, resp, &games)
	require.Len(t, games, 1)
	assert.True(t, games[0].VsComputer)
}

func TestPlayAgainstComputer(t *testing.T) {
	ts := newTestServer(t)
	token, me := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{First: "me", Rules: slowComputer})
	path := "/game/" + id.String()

	resp := ts.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap game.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, me, snap.CurrentPlayerID)
	mine := ownView(t, snap, me)
	require.Len(t, mine.Cards, game.DefaultHandSize)
	for _, p := range snap.Players {
		if p.PlayerID != me {
			assert.Empty(t, p.Cards, "opponent hand is hidden")
			assert.Equal(t, game.DefaultHandSize, p.HandSize)
		}
	}

	// a card played twice is never legal
	twice := []string{mine.Cards[0].String(), mine.Cards[0].String()}
	resp = ts.do(t, http.MethodPost, path+"/play", token, playRequest{Cards: twice})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path+"/play", token, playRequest{Cards: []string{"Eleven of Cups"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path+"/draw", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var drew actionResponse
	decode(t, resp, &drew)
	assert.Len(t, ownView(t, drew.State, me).Cards, game.DefaultHandSize+1)
	assert.NotEqual(t, me, drew.State.CurrentPlayerID)

	resp = ts.do(t, http.MethodPost, path+"/draw", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	stranger, _ := ts.guest(t)
	resp = ts.do(t, http.MethodPost, path+"/draw", stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAutoMoveEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token, me := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{First: "me", Rules: slowComputer})

	resp := ts.do(t, http.MethodPost, "/game/"+id.String()+"/auto", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out actionResponse
	decode(t, resp, &out)
	require.NotNil(t, out.Move)
	assert.NotEqual(t, me, out.State.CurrentPlayerID)
}

func TestHumanOpponents(t *testing.T) {
	ts := newTestServer(t)
	tokenA, a := ts.guest(t)
	tokenB, b := ts.guest(t)

	resp := ts.do(t, http.MethodPost, "/game/create", tokenA, createGameRequest{OpponentID: &a})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, "/game/create", tokenA, createGameRequest{OpponentID: &b, First: "sometimes"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	first := ts.createGame(t, tokenA, createGameRequest{OpponentID: &b, First: "opponent"})
	waitSaved(t, ts, first)
	id := ts.createGame(t, tokenA, createGameRequest{OpponentID: &b, First: "opponent"})
	_, live := ts.gs.GameStore.GetGame(first)
	assert.False(t, live, "a new game replaces the unfinished one")
	_, err := ts.store.LoadGameState(context.Background(), first)
	assert.ErrorIs(t, err, models.ErrGameNotFound)

	path := "/game/" + id.String()
	resp = ts.do(t, http.MethodPost, path+"/draw", tokenA, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, path+"/draw", tokenB, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = ts.do(t, http.MethodPost, path+"/draw", tokenA, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/game/list", tokenB, nil)
	var games []gameSummary
	decode(t, resp, &games)
	require.Len(t, games, 1)
	assert.Equal(t, a, games[0].OpponentID)
	assert.True(t, games[0].YourTurn)
}

func TestComputerGameReplaced(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.guest(t)
	other, _ := ts.guest(t)
	otherGame := ts.createGame(t, other, createGameRequest{Rules: slowComputer})

	first := ts.createGame(t, token, createGameRequest{Rules: slowComputer})
	// no wait for the opening save: a late save must not bring the old game back
	second := ts.createGame(t, token, createGameRequest{Rules: slowComputer})
	require.NotEqual(t, first, second)

	_, live := ts.gs.GameStore.GetGame(first)
	assert.False(t, live)
	waitSaved(t, ts, second)
	_, err := ts.store.LoadGameState(context.Background(), first)
	assert.ErrorIs(t, err, models.ErrGameNotFound)

	resp := ts.do(t, http.MethodGet, "/game/list", token, nil)
	var games []gameSummary
	decode(t, resp, &games)
	require.Len(t, games, 1)
	assert.Equal(t, second, games[0].ID)

	_, live = ts.gs.GameStore.GetGame(otherGame)
	assert.True(t, live, "other players keep their computer games")
}

func TestComputerGameReplacedAfterRestart(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.guest(t)
	first := ts.createGame(t, token, createGameRequest{Rules: slowComputer})
	waitSaved(t, ts, first)
	ts.gs.evict(first, websocket.StatusNormalClosure, "test")

	ts.createGame(t, token, createGameRequest{Rules: slowComputer})
	_, err := ts.store.LoadGameState(context.Background(), first)
	assert.ErrorIs(t, err, models.ErrGameNotFound, "stored games are replaced too")
}

func TestCreateGameRejectsOversizedHands(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.guest(t)

	resp := ts.do(t, http.MethodPost, "/game/create", token, createGameRequest{
		Rules: map[string]interface{}{"handSize": 30},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	id := ts.createGame(t, token, createGameRequest{
		Rules: map[string]interface{}{"handSize": game.MaxHandSize, "autoMoveDelayMs": 600000},
		First: "me",
	})
	resp = ts.do(t, http.MethodGet, "/game/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap game.Snapshot
	decode(t, resp, &snap)
	assert.Zero(t, snap.DeckSize, "two full hands use the whole deck")
}

func TestGameRestoredFromStore(t *testing.T) {
	ts := newTestServer(t)
	token, me := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{First: "me", Rules: slowComputer})

	waitSaved(t, ts, id)
	ts.gs.evict(id, websocket.StatusNormalClosure, "test")
	_, live := ts.gs.GameStore.GetGame(id)
	require.False(t, live)

	resp := ts.do(t, http.MethodGet, "/game/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap game.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, me, snap.CurrentPlayerID)
	assert.Len(t, ownView(t, snap, me).Cards, game.DefaultHandSize)

	_, live = ts.gs.GameStore.GetGame(id)
	assert.True(t, live)
}

func TestDeleteGame(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.guest(t)
	stranger, _ := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{Rules: slowComputer})
	path := "/game/" + id.String()

	waitSaved(t, ts, id)

	resp := ts.do(t, http.MethodDelete, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/game/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func dialGame(t *testing.T, ts *testServer, id uuid.UUID, token string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/ws/" + id.String()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

// readUntil reads events until one of type want arrives.
func readUntil(t *testing.T, c *websocket.Conn, want game.GameEventType) game.GameEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var ev game.GameEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == want {
			return ev
		}
	}
}

func send(t *testing.T, c *websocket.Conn, msg GameMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestGameSocket(t *testing.T) {
	ts := newTestServer(t)
	token, me := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{First: "me", Rules: slowComputer})

	c := dialGame(t, ts, id, token, "game")
	first := readUntil(t, c, game.EventPrivateSyncState)
	require.NotNil(t, first.State)
	assert.Len(t, ownView(t, *first.State, me).Cards, game.DefaultHandSize)

	send(t, c, GameMessage{Type: msgPing})
	readUntil(t, c, "pong")

	send(t, c, GameMessage{Type: msgSubmitPlay, Cards: []string{"nonsense"}})
	readUntil(t, c, "error")

	send(t, c, GameMessage{Type: msgRequestDraw})
	drawn := readUntil(t, c, game.EventPlayerDraw)
	require.NotNil(t, drawn.User)
	assert.Equal(t, me, drawn.User.ID)

	send(t, c, GameMessage{Type: msgRequestDraw})
	notYours := readUntil(t, c, "error")
	assert.Equal(t, game.ErrNotYourTurn.Error(), notYours.Payload["message"])

	c.Close(websocket.StatusNormalClosure, "")
}

func TestGameSocketRejectsBadClients(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.guest(t)
	stranger, _ := ts.guest(t)
	id := ts.createGame(t, token, createGameRequest{Rules: slowComputer})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	noProto := dialGame(t, ts, id, token)
	_, _, err := noProto.Read(ctx)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))

	notSeated := dialGame(t, ts, id, stranger, "game")
	_, _, err = notSeated.Read(ctx)
	assert.Equal(t, NotSeatedError, websocket.CloseStatus(err))

	badToken := dialGame(t, ts, id, "forged", "game")
	_, _, err = badToken.Read(ctx)
	assert.Equal(t, InvalidAuthTokenError, websocket.CloseStatus(err))
}
