package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"pongmatch/engine"
)

// Launcher asks a game server to host a match.
type Launcher interface {
	// Create registers the match so that players can connect.
	Create(ctx context.Context, gameID string) error
	// Start creates the match if needed and opens it to players.
	Start(ctx context.Context, gameID string) error
}

// GameServerClient talks to the game server on behalf of the matchmaker.
// Mutating calls carry the CSRF token and cookie fetched beforehand.
type GameServerClient struct {
	BaseURL string
	Client  *http.Client
}

func NewGameServerClient(baseURL string, timeout time.Duration) *GameServerClient {
	return &GameServerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type csrfTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

func (c *GameServerClient) csrfToken(ctx context.Context) (string, []*http.Cookie, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/get-csrf-token", nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", nil, eris.Wrap(err, "fetch csrf token")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", nil, eris.Errorf("csrf token request returned %d: %s", resp.StatusCode, body)
	}
	var out csrfTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", nil, eris.Wrap(err, "decode csrf token")
	}
	if out.CSRFToken == "" {
		return "", nil, eris.New("game server returned an empty csrf token")
	}
	return out.CSRFToken, resp.Cookies(), nil
}

func (c *GameServerClient) put(ctx context.Context, path string) error {
	token, cookies, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-CSRFToken", token)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "PUT %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return eris.Errorf("PUT %s returned %d: %s", path, resp.StatusCode, body)
	}
	return nil
}

func (c *GameServerClient) Create(ctx context.Context, gameID string) error {
	if err := c.put(ctx, "/match/"+gameID); err != nil {
		return err
	}
	log.Debug().Str("game_id", gameID).Msg("[PEER] match creation requested")
	return nil
}

func (c *GameServerClient) Start(ctx context.Context, gameID string) error {
	if err := c.Create(ctx, gameID); err != nil {
		return err
	}
	if err := c.put(ctx, "/match/start/"+gameID); err != nil {
		return err
	}
	log.Debug().Str("game_id", gameID).Msg("[PEER] match start requested")
	return nil
}

// MatchmakerClient reports finished matches back to the matchmaker.
type MatchmakerClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewMatchmakerClient(baseURL, apiKey string, timeout time.Duration) *MatchmakerClient {
	return &MatchmakerClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *MatchmakerClient) ReportResult(ctx context.Context, result engine.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/game-result", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return eris.Wrap(err, "submit result")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("result submission for %s returned %d: %s", result.GameID, resp.StatusCode, body)
	}
	log.Info().
		Str("game_id", result.GameID).
		Int("left", result.LeftScore).
		Int("right", result.RightScore).
		Msg("[PEER] result submitted")
	return nil
}
