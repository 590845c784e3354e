// Package cardcatalog looks cards up by name in an external catalog and
// caches results per search term.
package cardcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gosimple/unidecode"
	"github.com/rs/zerolog"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded, try again later")
	ErrEmptyQuery  = errors.New("search term is empty")
)

type ImageURIs struct {
	Small   string `json:"small,omitempty"`
	Normal  string `json:"normal,omitempty"`
	ArtCrop string `json:"art_crop,omitempty"`
}

type Card struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	TypeLine   string            `json:"type_line,omitempty"`
	OracleText string            `json:"oracle_text,omitempty"`
	ImageURIs  *ImageURIs        `json:"image_uris,omitempty"`
	Legalities map[string]string `json:"legalities,omitempty"`
}

// Art returns the best image for a player icon, or "".
func (c Card) Art() string {
	if c.ImageURIs == nil {
		return ""
	}
	if c.ImageURIs.ArtCrop != "" {
		return c.ImageURIs.ArtCrop
	}
	return c.ImageURIs.Normal
}

// Cache stores search results by normalized term.
type Cache interface {
	Get(ctx context.Context, term string) ([]Card, bool, error)
	Put(ctx context.Context, term string, cards []Card) error
}

type Client struct {
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
	Cache     Cache
	log       zerolog.Logger
}

func NewClient(baseURL string, cache Cache, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: "LifeSync/1.0",
		HTTP:      &http.Client{Timeout: 15 * time.Second},
		Cache:     cache,
		log:       logger.With().Str("component", "cardcatalog").Logger(),
	}
}

// NormalizeTerm folds case, accents and whitespace so equivalent searches
// share a cache row.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(unidecode.Unidecode(term))), " ")
}

// Search returns cards matching term. A term with no matches yields an empty
// slice, not an error.
func (c *Client) Search(ctx context.Context, term string) ([]Card, error) {
	key := NormalizeTerm(term)
	if key == "" {
		return nil, ErrEmptyQuery
	}
	logger := c.log.With().Str("term", key).Logger()

	if c.Cache != nil {
		cards, ok, err := c.Cache.Get(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("card cache read failed")
		} else if ok {
			return cards, nil
		}
	}

	cards, err := c.fetch(ctx, strings.TrimSpace(term))
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := c.Cache.Put(ctx, key, cards); err != nil {
			logger.Warn().Err(err).Msg("card cache write failed")
		}
	}
	return cards, nil
}

func (c *Client) fetch(ctx context.Context, term string) ([]Card, error) {
	u := fmt.Sprintf("%s/cards/search?q=%s", c.BaseURL, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build card search request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card search: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return []Card{}, nil
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("card search returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Data []Card `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode card search: %w", err)
	}
	if out.Data == nil {
		out.Data = []Card{}
	}
	return out.Data, nil
}
