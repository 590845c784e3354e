package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrUnauthorized = errors.New("unauthorized")

// AuthServiceClient talks to the identity service. Only the user id it
// hands back is used by this system.
type AuthServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
	log     zerolog.Logger
}

type ValidateResponse struct {
	UserID                  string   `json:"user_id"`
	DeviceID                string   `json:"device_id"`
	OTPNotRequiredForDevice bool     `json:"otp_not_required_for_device"`
	Roles                   []string `json:"roles"`
}

// AuthSession is what sign-in and sign-up return.
type AuthSession struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func NewAuthServiceClient(baseURL, token string, client *http.Client, logger zerolog.Logger) *AuthServiceClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthServiceClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  client,
		log:     logger.With().Str("component", "auth_client").Logger(),
	}
}

func (c *AuthServiceClient) post(ctx context.Context, path, bearer string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("auth service %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Str("body", string(body)).Msg("auth service call failed")
		return fmt.Errorf("auth service %s returned %d", path, resp.StatusCode)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	return nil
}

// ValidateToken checks an access token for a device.
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken, deviceID string) (*ValidateResponse, error) {
	var out ValidateResponse
	err := c.post(ctx, "/auth/validate", c.Token, map[string]string{
		"access_token": accessToken,
		"device_id":    deviceID,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.UserID == "" {
		return nil, ErrUnauthorized
	}
	return &out, nil
}

func (c *AuthServiceClient) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	var out AuthSession
	if err := c.post(ctx, "/auth/signin", c.Token, map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AuthServiceClient) SignUp(ctx context.Context, email, password string) (*AuthSession, error) {
	var out AuthSession
	if err := c.post(ctx, "/auth/signup", c.Token, map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AuthServiceClient) ResetPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/auth/reset-password", c.Token, map[string]string{"email": email}, nil)
}

// UpdateProfile is called with the user's own access token.
func (c *AuthServiceClient) UpdateProfile(ctx context.Context, accessToken string, p Profile) (*Profile, error) {
	var out Profile
	if err := c.post(ctx, "/auth/profile", accessToken, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
