package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/cardcatalog"
	"lifesync/middleware"
	"lifesync/models"
	"lifesync/services"
	"lifesync/store"
	"lifesync/table"
	"lifesync/utils"
)

const testToken = "service-token"

type fakeCatalog struct {
	cards []cardcatalog.Card
	err   error
}

func (f fakeCatalog) Search(_ context.Context, term string) ([]cardcatalog.Card, error) {
	if strings.TrimSpace(term) == "" {
		return nil, cardcatalog.ErrEmptyQuery
	}
	return f.cards, f.err
}

type testServer struct {
	app     *fiber.App
	backend *store.Memory
	baseURL string
}

func newTestApp(t *testing.T, catalog services.CardSearcher) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	backend := store.NewMemory(clockwork.NewRealClock())
	files, err := utils.NewLocalFiles(t.TempDir(), "http://localhost:5200/uploads")
	if err != nil {
		t.Fatalf("local files: %v", err)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(middleware.GatewayAuthMiddleware(testToken, logger))
	SetupSessionRoutes(app, services.NewSessionService(backend, nil, logger), nil, logger)
	SetupCardRoutes(app, services.NewCardService(catalog, logger))
	SetupIconRoutes(app, services.NewIconService(files, logger), t.TempDir())
	return &testServer{app: app, backend: backend}
}

// listen serves the app on a loopback port for clients that need a real
// connection.
func (s *testServer) listen(t *testing.T) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go s.app.Listener(ln)
	t.Cleanup(func() { s.app.ShutdownWithTimeout(time.Second) })
	s.baseURL = "http://" + ln.Addr().String()
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func TestGatewayTokenRequired(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})
	req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	resp, _ = s.app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})

	status, body := s.do(t, http.MethodPost, "/sessions", map[string]string{"hostId": "host-1"}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("create: %d %s", status, body)
	}
	var created struct{ ID string }
	json.Unmarshal(body, &created)
	if created.ID == "" {
		t.Fatalf("expected a generated id, got %s", body)
	}

	if status, _ := s.do(t, http.MethodPost, "/sessions", map[string]string{"id": created.ID, "hostId": "x"}, nil); status != fiber.StatusConflict {
		t.Fatalf("expected 409 for a taken id, got %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/sessions", map[string]string{}, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without hostId, got %d", status)
	}

	if status, _ := s.do(t, http.MethodPost, "/sessions/"+created.ID+"/members", map[string]string{"playerId": "guest-1"}, nil); status != fiber.StatusNoContent {
		t.Fatalf("add member: %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/sessions/nope/members", map[string]string{"playerId": "guest-1"}, nil); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 joining an unknown room, got %d", status)
	}

	status, body = s.do(t, http.MethodGet, "/sessions/"+created.ID, nil, nil)
	var session models.Session
	json.Unmarshal(body, &session)
	if status != fiber.StatusOK || session.HostID != "host-1" || len(session.Members) != 2 {
		t.Fatalf("unexpected session %d %s", status, body)
	}

	if status, _ := s.do(t, http.MethodGet, "/sessions/"+created.ID+"/state", nil, nil); status != fiber.StatusNoContent {
		t.Fatalf("expected 204 before any write, got %d", status)
	}

	raw := map[string]any{
		"players":     []models.Player{models.NewPlayer("host-1", "Alice", models.ManaWhite, true)},
		"gameHistory": []any{"[10:00:00] Game created", nil},
	}
	if status, body := s.do(t, http.MethodPut, "/sessions/"+created.ID+"/state", raw, nil); status != fiber.StatusNoContent {
		t.Fatalf("put state: %d %s", status, body)
	}
	status, body = s.do(t, http.MethodGet, "/sessions/"+created.ID+"/state", nil, nil)
	var p models.Payload
	json.Unmarshal(body, &p)
	state := p.State()
	if status != fiber.StatusOK || len(state.Players) != 1 || len(state.GameHistory) != 1 || state.GameEnded {
		t.Fatalf("expected a sanitized state, got %d %s", status, body)
	}

	if status, _ := s.do(t, http.MethodDelete, "/sessions/"+created.ID, nil, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without a user, got %d", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/sessions/"+created.ID, nil, map[string]string{"X-User-ID": "guest-1"}); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for a guest, got %d", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/sessions/"+created.ID, nil, map[string]string{"X-User-ID": "host-1"}); status != fiber.StatusNoContent {
		t.Fatalf("expected the host to close the room, got %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/sessions/"+created.ID, nil, nil); status != fiber.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", status)
	}
}

func TestCardSearchProxy(t *testing.T) {
	ok := newTestApp(t, fakeCatalog{cards: []cardcatalog.Card{{ID: "1", Name: "Sol Ring"}}})
	status, body := ok.do(t, http.MethodGet, "/cards/search?q=sol+ring", nil, nil)
	if status != fiber.StatusOK || !strings.Contains(string(body), "Sol Ring") {
		t.Fatalf("unexpected search response %d %s", status, body)
	}
	if status, _ := ok.do(t, http.MethodGet, "/cards/search?q=", nil, nil); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an empty term, got %d", status)
	}

	limited := newTestApp(t, fakeCatalog{err: cardcatalog.ErrRateLimited})
	if status, _ := limited.do(t, http.MethodGet, "/cards/search?q=sol", nil, nil); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	broken := newTestApp(t, fakeCatalog{err: errors.New("boom")})
	if status, _ := broken.do(t, http.MethodGet, "/cards/search?q=sol", nil, nil); status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
}

func upload(t *testing.T, s *testServer, filename string, data []byte) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("icon", filename)
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/icons", &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func TestIconUpload(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	status, body := upload(t, s, "avatar.png", png)
	if status != fiber.StatusCreated || !strings.Contains(string(body), "http://localhost:5200/uploads/icons/") {
		t.Fatalf("unexpected upload response %d %s", status, body)
	}
	if status, _ := upload(t, s, "notes.txt", []byte("plain text")); status != fiber.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for a non-image, got %d", status)
	}
}

func TestHTTPStoreOverSocket(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})
	s.listen(t)
	ctx := context.Background()
	remote := store.NewHTTPStore(s.baseURL, testToken, zerolog.Nop())

	id, err := remote.CreateSession(ctx, "", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := remote.SessionExists(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected unknown room to not exist, got %v %v", ok, err)
	}
	if err := remote.AddMember(ctx, "missing", "p"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := remote.Subscribe(ctx, "missing", func(models.Payload) {}); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound subscribing to an unknown room, got %v", err)
	}

	got := make(chan models.GameState, 8)
	sub, err := remote.Subscribe(ctx, id, func(p models.Payload) { got <- p.State() })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	state := models.GameState{Players: []models.Player{models.NewPlayer("host-1", "Alice", models.ManaWhite, true)}}
	for life := 39; life >= 37; life-- {
		state.Players[0].Life = life
		if err := remote.SetGameState(ctx, id, models.NewPayload(state)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Players[0].Life == 37 {
				sub.Unsubscribe()
				sub.Unsubscribe()
				return
			}
		case <-deadline:
			t.Fatalf("latest state never arrived over the socket")
		}
	}
}

func TestStateEventStream(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})
	s.listen(t)
	ctx := context.Background()
	id, _ := s.backend.CreateSession(ctx, "", "host-1")
	state := models.GameState{Players: []models.Player{models.NewPlayer("host-1", "Alice", models.ManaWhite, true)}}
	s.backend.SetGameState(ctx, id, models.NewPayload(state))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/sessions/"+id+"/stream", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	sawEvent := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: gameState" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var p models.Payload
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if got := p.State().Players[0].Name; got != "Alice" {
				t.Fatalf("unexpected player %q", got)
			}
			return
		}
	}
	t.Fatalf("stream ended without a gameState event: %v", scanner.Err())
}

func TestTablesSyncThroughServer(t *testing.T) {
	s := newTestApp(t, fakeCatalog{})
	s.listen(t)
	ctx := context.Background()

	newTable := func() *table.Table {
		cfg := table.DefaultConfig()
		cfg.PushDebounce = 20 * time.Millisecond
		cfg.CoalesceWindow = 5 * time.Millisecond
		tb := table.New(store.NewHTTPStore(s.baseURL, testToken, zerolog.Nop()), nil, cfg)
		t.Cleanup(func() { tb.Close(context.Background()) })
		return tb
	}
	host, guest := newTable(), newTable()

	code, ok := host.Host(ctx, "Alice")
	if !ok {
		t.Fatalf("host failed")
	}
	if ok, err := guest.Join(ctx, code, "Bob"); !ok || err != nil {
		t.Fatalf("join: %v %v", ok, err)
	}

	eventually(t, "host to see the guest", func() bool { return len(host.Snapshot().Players) == 2 })

	bob, _ := guest.CurrentPlayer()
	if err := guest.ChangeLife(ctx, bob.ID, -4); err != nil {
		t.Fatalf("change: %v", err)
	}
	eventually(t, "host to see the life change", func() bool {
		for _, p := range host.Snapshot().Players {
			if p.ID == bob.ID {
				return p.Life == 36
			}
		}
		return false
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
