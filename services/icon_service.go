package services

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lifesync/utils"
)

// MaxIconSize caps player icon uploads.
const MaxIconSize = 2 * 1024 * 1024

// FileStore is where uploaded icons end up: R2 in production, the local
// upload dir otherwise.
type FileStore interface {
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type IconService struct {
	files FileStore
	log   zerolog.Logger
}

func NewIconService(files FileStore, logger zerolog.Logger) *IconService {
	return &IconService{files: files, log: logger.With().Str("component", "icon_service").Logger()}
}

// Upload stores a player icon from the multipart field "icon" and returns
// its public URL.
func (s *IconService) Upload(c *fiber.Ctx) error {
	header, err := c.FormFile("icon")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
	}
	if header.Size > MaxIconSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "icon is too large"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to read icon"})
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxIconSize+1))
	if err != nil || len(data) > MaxIconSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to read icon"})
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{"error": "icon must be an image"})
	}

	url, err := s.files.Save(c.UserContext(), utils.IconKey(header.Filename), contentType, data)
	if err != nil {
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("icon upload failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store icon"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
}
