package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/park285/cheese-lichess/internal/obslog"
	"go.uber.org/zap"
)

// StreamAccountEvents follows the account event stream until ctx ends or the
// server closes it. The channel is closed when the stream stops.
func (c *Client) StreamAccountEvents(ctx context.Context) (<-chan EventMessage, error) {
	body, err := c.openStream(ctx, "/api/stream/event")
	if err != nil {
		return nil, fmt.Errorf("stream events: %w", err)
	}
	out := make(chan EventMessage, 8)
	go pump(ctx, body, out, "account")
	return out, nil
}

// StreamGameEvents follows one game's state stream.
func (c *Client) StreamGameEvents(ctx context.Context, gameID string) (<-chan GameStateMessage, error) {
	body, err := c.openStream(ctx, "/api/board/game/stream/"+url.PathEscape(gameID))
	if err != nil {
		return nil, fmt.Errorf("stream game %s: %w", gameID, err)
	}
	out := make(chan GameStateMessage, 8)
	go pump(ctx, body, out, "game:"+gameID)
	return out, nil
}

func (c *Client) openStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	c.authorize(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}

// pump decodes newline-delimited JSON into out. Keepalive blank lines are
// whitespace to the decoder.
func pump[T any](ctx context.Context, body io.ReadCloser, out chan<- T, name string) {
	defer close(out)
	defer body.Close()

	dec := json.NewDecoder(body)
	for {
		var msg T
		if err := dec.Decode(&msg); err != nil {
			switch {
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				obslog.L().Info("lichess_stream_closed", zap.String("stream", name))
			default:
				obslog.L().Warn("lichess_stream_error", zap.String("stream", name), zap.Error(err))
			}
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}
