package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lifesync/models"
	"lifesync/store"
)

// keepAlive is how often an idle event stream writes a comment line, which
// is also how a dropped client is noticed.
const keepAlive = 15 * time.Second

// SessionService exposes a store.Backend as the remote session API.
type SessionService struct {
	Store store.Backend
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewSessionService(backend store.Backend, clock clockwork.Clock, logger zerolog.Logger) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionService{
		Store: backend,
		clock: clock,
		log:   logger.With().Str("component", "session_service").Logger(),
	}
}

type createSessionRequest struct {
	ID     string `json:"id"`
	HostID string `json:"hostId"`
}

type addMemberRequest struct {
	PlayerID string `json:"playerId"`
}

// storeError maps store sentinels onto status codes.
func (s *SessionService) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	case errors.Is(err, store.ErrSessionExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session already exists"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "request cancelled"})
	}
	s.log.Error().Err(err).Str("path", c.Path()).Msg("store call failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (s *SessionService) CreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.HostID = strings.TrimSpace(req.HostID)
	if req.HostID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hostId is required"})
	}

	id, err := s.Store.CreateSession(c.UserContext(), strings.TrimSpace(req.ID), req.HostID)
	if err != nil {
		return s.storeError(c, err)
	}
	s.log.Info().Str("session_id", id).Str("host_id", req.HostID).Msg("session created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *SessionService) GetSession(c *fiber.Ctx) error {
	session, err := s.Store.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(session)
}

func (s *SessionService) AddMember(c *fiber.Ctx) error {
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	if req.PlayerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "playerId is required"})
	}
	if err := s.Store.AddMember(c.UserContext(), c.Params("id"), req.PlayerID); err != nil {
		return s.storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *SessionService) GetState(c *fiber.Ctx) error {
	p, err := s.Store.GetGameState(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	if p == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(p)
}

// PutState replaces the room's gameState. Null history entries and missing
// fields are cleaned up before the write.
func (s *SessionService) PutState(c *fiber.Ctx) error {
	var p models.Payload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid game state"})
	}
	if err := s.Store.SetGameState(c.UserContext(), c.Params("id"), p.Sanitize()); err != nil {
		return s.storeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteSession closes a room. Only its host may do so.
func (s *SessionService) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	userID, _ := c.Locals("user_id").(string)
	session, err := s.Store.GetSession(c.UserContext(), id)
	if err != nil {
		return s.storeError(c, err)
	}
	if userID == "" || userID != session.HostID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "only the host can close a session"})
	}
	if err := s.Store.DeleteSession(c.UserContext(), id); err != nil {
		return s.storeError(c, err)
	}
	s.log.Info().Str("session_id", id).Msg("session closed by host")
	return c.SendStatus(fiber.StatusNoContent)
}

// subscribe feeds emissions into a channel that keeps only the latest one,
// so a slow client never blocks the store.
func (s *SessionService) subscribe(id string) (store.Subscription, <-chan models.Payload, error) {
	updates := make(chan models.Payload, 1)
	sub, err := s.Store.Subscribe(context.Background(), id, func(p models.Payload) {
		select {
		case <-updates:
		default:
		}
		updates <- p
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, updates, nil
}

// StreamState serves the room's gameState as server-sent events.
func (s *SessionService) StreamState(c *fiber.Ctx) error {
	id := c.Params("id")
	sub, updates, err := s.subscribe(id)
	if err != nil {
		return s.storeError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := s.log.With().Str("session_id", id).Logger()
	done := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Unsubscribe()
		ticker := s.clock.NewTicker(keepAlive)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case p := <-updates:
				data, err := json.Marshal(p)
				if err != nil {
					logger.Warn().Err(err).Msg("encoding stream payload failed")
					continue
				}
				fmt.Fprintf(w, "event: gameState\ndata: %s\n\n", data)
			case <-ticker.Chan():
				w.WriteString(":\n\n")
			case <-done:
				return
			}
			if err := w.Flush(); err != nil {
				logger.Debug().Err(err).Msg("stream client disconnected")
				return
			}
		}
	})
	return nil
}

// RequireSocket rejects plain requests and unknown rooms before the
// websocket upgrade.
func (s *SessionService) RequireSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	ok, err := s.Store.SessionExists(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	return c.Next()
}

// SocketState pushes one JSON payload per emission until the client goes
// away.
func (s *SessionService) SocketState(conn *websocket.Conn) {
	id := conn.Params("id")
	logger := s.log.With().Str("session_id", id).Logger()
	sub, updates, err := s.subscribe(id)
	if err != nil {
		logger.Warn().Err(err).Msg("socket subscription failed")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case p := <-updates:
			if err := conn.WriteJSON(p); err != nil {
				logger.Debug().Err(err).Msg("socket write failed")
				return
			}
		case <-closed:
			return
		}
	}
}
