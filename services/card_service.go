package services

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lifesync/cardcatalog"
)

// CardSearcher is the card lookup the proxy serves from.
type CardSearcher interface {
	Search(ctx context.Context, term string) ([]cardcatalog.Card, error)
}

// CardService proxies card search so clients share one cache and one rate
// limit budget.
type CardService struct {
	catalog CardSearcher
	log     zerolog.Logger
}

func NewCardService(catalog CardSearcher, logger zerolog.Logger) *CardService {
	return &CardService{catalog: catalog, log: logger.With().Str("component", "card_service").Logger()}
}

func (s *CardService) Search(c *fiber.Ctx) error {
	cards, err := s.catalog.Search(c.UserContext(), c.Query("q"))
	switch {
	case errors.Is(err, cardcatalog.ErrEmptyQuery):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, cardcatalog.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Rate limit exceeded. Please try again later."})
	case err != nil:
		s.log.Warn().Err(err).Str("q", c.Query("q")).Msg("card search failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "An error occurred while searching for cards."})
	}
	return c.JSON(fiber.Map{"data": cards})
}
