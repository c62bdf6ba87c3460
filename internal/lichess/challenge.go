package lichess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/park285/cheese-lichess/internal/obslog"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var ErrMissingURL = errors.New("challenge response has no url")

// ChallengeOptions are the clock and color settings shared by every way of
// opening a game.
type ChallengeOptions struct {
	ClockLimit     int // seconds
	ClockIncrement int // seconds
	Rated          bool
	Color          string // white, black or random
	Variant        string
}

func (o ChallengeOptions) form() url.Values {
	v := url.Values{}
	v.Set("rated", strconv.FormatBool(o.Rated))
	if o.ClockLimit > 0 {
		v.Set("clock.limit", strconv.Itoa(o.ClockLimit))
		v.Set("clock.increment", strconv.Itoa(o.ClockIncrement))
	}
	color := strings.ToLower(strings.TrimSpace(o.Color))
	if color == "" {
		color = "random"
	}
	v.Set("color", color)
	if variant := strings.TrimSpace(o.Variant); variant != "" {
		v.Set("variant", variant)
	}
	return v
}

// GameInfo identifies the game a challenge leads to.
type GameInfo struct {
	ID  string
	URL string
}

type challengeResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Challenge *struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"challenge"`
}

func (r challengeResponse) info() (GameInfo, error) {
	rawURL := r.URL
	if rawURL == "" && r.Challenge != nil {
		rawURL = r.Challenge.URL
	}
	return GameInfoFromURL(rawURL)
}

// GameInfoFromURL takes the game id from the last path segment of url.
func GameInfoFromURL(rawURL string) (GameInfo, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return GameInfo{}, ErrMissingURL
	}
	id := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		id = u.Path
	}
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		return GameInfo{}, fmt.Errorf("no game id in url %q", rawURL)
	}
	return GameInfo{ID: id, URL: rawURL}, nil
}

// CreateChallenge challenges a named account.
func (c *Client) CreateChallenge(ctx context.Context, opponent string, opts ChallengeOptions) (GameInfo, error) {
	opponent = strings.TrimSpace(opponent)
	if opponent == "" {
		return GameInfo{}, errors.New("opponent is required")
	}
	var resp challengeResponse
	if err := c.doForm(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(opponent), opts.form(), &resp); err != nil {
		return GameInfo{}, fmt.Errorf("create challenge: %w", err)
	}
	info, err := resp.info()
	if err != nil {
		return GameInfo{}, fmt.Errorf("create challenge: %w", err)
	}
	obslog.L().Info("lichess_challenge", zap.String("opponent", opponent), zap.String("game_id", info.ID))
	return info, nil
}

// ChallengeAI starts a game against the server's engine at level 1-8. The
// game starts immediately.
func (c *Client) ChallengeAI(ctx context.Context, level int, opts ChallengeOptions) (GameInfo, error) {
	if level < 1 || level > 8 {
		return GameInfo{}, fmt.Errorf("ai level %d out of range 1-8", level)
	}
	form := opts.form()
	form.Set("level", strconv.Itoa(level))
	var resp challengeResponse
	if err := c.doForm(ctx, fasthttp.MethodPost, "/api/challenge/ai", form, &resp); err != nil {
		return GameInfo{}, fmt.Errorf("challenge ai: %w", err)
	}
	if resp.ID != "" && resp.URL == "" {
		resp.URL = c.baseURL + "/" + resp.ID
	}
	info, err := resp.info()
	if err != nil {
		return GameInfo{}, fmt.Errorf("challenge ai: %w", err)
	}
	obslog.L().Info("lichess_challenge_ai", zap.Int("level", level), zap.String("game_id", info.ID))
	return info, nil
}

// CreateSeek posts a public seek and blocks while the seek stays open. The
// server closes it once paired; the game id arrives as an account event.
// Cancel ctx to withdraw the seek.
func (c *Client) CreateSeek(ctx context.Context, opts ChallengeOptions) error {
	form := opts.form()
	if opts.ClockLimit > 0 {
		// seeks take minutes, not seconds
		form.Del("clock.limit")
		form.Del("clock.increment")
		form.Set("time", strconv.FormatFloat(float64(opts.ClockLimit)/60, 'f', -1, 64))
		form.Set("increment", strconv.Itoa(opts.ClockIncrement))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/board/seek", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create seek: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("create seek: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("create seek: %w", &APIError{Status: resp.StatusCode, Body: string(body)})
	}
	obslog.L().Info("lichess_seek_open", zap.Int("clock_limit", opts.ClockLimit))
	_, err = io.Copy(io.Discard, resp.Body)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("create seek: %w", err)
	}
	return nil
}
