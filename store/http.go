package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lifesync/models"
)

// HTTPStore is a Remote backed by the session server's REST API, with
// subscriptions over its websocket endpoint.
type HTTPStore struct {
	BaseURL string
	Token   string
	UserID  string
	Client  *http.Client
	Dialer  *websocket.Dialer
	log     zerolog.Logger
}

func NewHTTPStore(baseURL, token string, logger zerolog.Logger) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     logger.With().Str("component", "http_store").Logger(),
	}
}

func (s *HTTPStore) headers() http.Header {
	h := http.Header{}
	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	if s.UserID != "" {
		h.Set("X-User-ID", s.UserID)
	}
	return h
}

func (s *HTTPStore) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header = s.headers()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, ErrSessionNotFound
	case resp.StatusCode == http.StatusConflict:
		return resp.StatusCode, ErrSessionExists
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(msg))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func sessionPath(id string, rest ...string) string {
	return "/sessions/" + url.PathEscape(id) + strings.Join(rest, "")
}

func (s *HTTPStore) CreateSession(ctx context.Context, id, hostID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	in := map[string]string{"id": id, "hostId": hostID}
	if _, err := s.do(ctx, http.MethodPost, "/sessions", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (s *HTTPStore) SessionExists(ctx context.Context, id string) (bool, error) {
	_, err := s.do(ctx, http.MethodGet, sessionPath(id), nil, nil)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *HTTPStore) AddMember(ctx context.Context, id, playerID string) error {
	_, err := s.do(ctx, http.MethodPost, sessionPath(id, "/members"), map[string]string{"playerId": playerID}, nil)
	return err
}

func (s *HTTPStore) SetGameState(ctx context.Context, id string, payload models.Payload) error {
	_, err := s.do(ctx, http.MethodPut, sessionPath(id, "/state"), payload.Sanitize(), nil)
	return err
}

func (s *HTTPStore) GetGameState(ctx context.Context, id string) (*models.Payload, error) {
	var p models.Payload
	status, err := s.do(ctx, http.MethodGet, sessionPath(id, "/state"), nil, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	p = p.Sanitize()
	return &p, nil
}

func (s *HTTPStore) socketURL(id string) (string, error) {
	u, err := url.Parse(s.BaseURL + sessionPath(id, "/ws"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

type socketSubscription struct {
	conn *websocket.Conn
	w    *watcher
	read chan struct{}
	once sync.Once
}

func (s *socketSubscription) Unsubscribe() {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
	<-s.read
	s.w.Unsubscribe()
}

func (s *HTTPStore) Subscribe(ctx context.Context, id string, fn func(models.Payload)) (Subscription, error) {
	target, err := s.socketURL(id)
	if err != nil {
		return nil, fmt.Errorf("socket url: %w", err)
	}
	conn, resp, err := s.Dialer.DialContext(ctx, target, s.headers())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	sub := &socketSubscription{conn: conn, w: newWatcher(fn), read: make(chan struct{})}
	logger := s.log.With().Str("session_id", id).Logger()
	go func() {
		defer close(sub.read)
		for {
			var p models.Payload
			if err := conn.ReadJSON(&p); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
					!errors.Is(err, net.ErrClosed) {
					logger.Debug().Err(err).Msg("subscription socket closed")
				}
				return
			}
			sub.w.offer(p.Sanitize())
		}
	}()
	return sub, nil
}
