package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-queue-system/pkg/apperr"
	"github.com/jukebox-queue-system/pkg/models"
	"github.com/jukebox-queue-system/pkg/redis"
)

const tokenName = "spotify:app"

// TokenCache shares the app token between server instances.
type TokenCache interface {
	GetToken(ctx context.Context, name string) (*redis.TokenInfo, error)
	StoreToken(ctx context.Context, name string, token *redis.TokenInfo) error
	DeleteToken(ctx context.Context, name string) error
}

// Client fetches track metadata with a client-credentials token. The token is
// state owned by the client and checked for expiry on every use.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	accountsURL  string
	apiURL       string
	tokens       TokenCache

	mu    sync.Mutex
	token *redis.TokenInfo
	now   func() time.Time
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type Track struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Artists  []Artist `json:"artists"`
	Duration int64    `json:"duration_ms"`
	Explicit bool     `json:"explicit"`
	Album    Album    `json:"album"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// NewClient creates a metadata client. tokens may be nil, in which case the
// token lives only in this process.
func NewClient(clientID, clientSecret string, tokens TokenCache) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		accountsURL:  "https://accounts.spotify.com",
		apiURL:       "https://api.spotify.com",
		tokens:       tokens,
		now:          time.Now,
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.Valid(now) {
		return c.token.AccessToken, nil
	}

	if c.tokens != nil {
		shared, err := c.tokens.GetToken(ctx, tokenName)
		switch {
		case err == nil && shared.Valid(now):
			c.token = shared
			return shared.AccessToken, nil
		case err != nil && !errors.Is(err, redis.ErrTokenNotFound):
			log.Warn().Err(err).Msg("spotify token cache read failed")
		}
	}

	resp, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = &redis.TokenInfo{
		AccessToken: resp.AccessToken,
		ExpiresAt:   now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	if c.tokens != nil {
		if err := c.tokens.StoreToken(ctx, tokenName, c.token); err != nil {
			log.Warn().Err(err).Msg("failed to share spotify token")
		}
	}
	return c.token.AccessToken, nil
}

func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Add("Authorization", "Basic "+auth)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify: token request failed with status %d", resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}

// dropToken forgets a token Spotify rejected, here and in the shared cache,
// unless another caller already replaced it.
func (c *Client) dropToken(ctx context.Context, rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil || c.token.AccessToken != rejected {
		return
	}
	c.token = nil
	if c.tokens != nil {
		if err := c.tokens.DeleteToken(ctx, tokenName); err != nil {
			log.Warn().Err(err).Msg("failed to drop shared spotify token")
		}
	}
}

func (c *Client) getTrack(ctx context.Context, trackID string) (*http.Response, string, error) {
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/tracks/"+url.PathEscape(trackID), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	return resp, accessToken, nil
}

// FetchTrackMetadata looks a track up by Spotify id. A rejected token is
// dropped and the lookup retried once with a fresh one.
func (c *Client) FetchTrackMetadata(ctx context.Context, trackID string) (*models.Track, error) {
	resp, accessToken, err := c.getTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.dropToken(ctx, accessToken)
		if resp, _, err = c.getTrack(ctx, trackID); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("spotify track %s: %w", trackID, apperr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("spotify: track request failed with status %d", resp.StatusCode)
	}

	var track Track
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, err
	}
	return track.toModel(c.now()), nil
}

func (t Track) toModel(fetched time.Time) *models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	var cover string
	if len(t.Album.Images) > 0 {
		cover = t.Album.Images[0].URL
	}
	return &models.Track{
		TrackID:     t.ID,
		Title:       t.Name,
		Artists:     strings.Join(names, ", "),
		ReleaseName: t.Album.Name,
		CoverArtURL: cover,
		IsExplicit:  t.Explicit,
		DurationMs:  t.Duration,
		LastFetched: fetched.UTC(),
	}
}
