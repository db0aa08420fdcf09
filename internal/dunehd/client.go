package dunehd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single request to the player.
const DefaultTimeout = 5 * time.Second

const commandPath = "/cgi-bin/do"

// Client talks to one Dune-HD player over its HTTP control API.
// The player handles one request at a time, so calls are serialized.
type Client struct {
	address    string
	httpClient *http.Client
	slot       chan struct{}
}

// NewClient creates a client for the player at address (host or host:port).
func NewClient(address string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		address: address,
		slot:    make(chan struct{}, 1),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxConnsPerHost:     1,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Address returns the player address this client targets.
func (c *Client) Address() string {
	return c.address
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// SendCommand runs a JSON command and returns the parsed status.
func (c *Client) SendCommand(ctx context.Context, cmd Command, params url.Values) (*Status, error) {
	query := cloneValues(params)
	query.Set("result_syntax", "json")
	payload, err := c.do(ctx, cmd, query)
	if err != nil {
		return nil, err
	}
	return ParseStatus(cmd, payload)
}

// GetBytes runs a command whose response is raw content, such as get_file.
func (c *Client) GetBytes(ctx context.Context, cmd Command, params url.Values) ([]byte, error) {
	return c.do(ctx, cmd, cloneValues(params))
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	return c.SendCommand(ctx, CommandGetStatus, nil)
}

func (c *Client) UIState(ctx context.Context) (*Status, error) {
	return c.SendCommand(ctx, CommandUIState, nil)
}

// SendIRCode emulates a remote control key press.
func (c *Client) SendIRCode(ctx context.Context, code IRCode) (*Status, error) {
	return c.SendCommand(ctx, CommandIRCode, url.Values{"ir_code": {code.Wire()}})
}

func (c *Client) SetVolume(ctx context.Context, level int) (*Status, error) {
	return c.SendCommand(ctx, CommandSetPlaybackState, url.Values{"volume": {strconv.Itoa(level)}})
}

func (c *Client) Mute(ctx context.Context, mute bool) (*Status, error) {
	value := "0"
	if mute {
		value = "1"
	}
	return c.SendCommand(ctx, CommandSetPlaybackState, url.Values{"mute": {value}})
}

// Seek moves playback to position seconds.
func (c *Client) Seek(ctx context.Context, position int) (*Status, error) {
	return c.SendCommand(ctx, CommandSetPlaybackState, url.Values{"position": {strconv.Itoa(position)}})
}

func (c *Client) LaunchMediaURL(ctx context.Context, mediaURL string) (*Status, error) {
	return c.SendCommand(ctx, CommandLaunchMediaURL, url.Values{"media_url": {mediaURL}})
}

func (c *Client) Standby(ctx context.Context) (*Status, error) {
	return c.SendCommand(ctx, CommandStandby, nil)
}

func (c *Client) GetFile(ctx context.Context, path string) ([]byte, error) {
	return c.GetBytes(ctx, CommandGetFile, url.Values{"path": {path}})
}

// FileURL returns an absolute URL that fetches path from the player.
func (c *Client) FileURL(path string) string {
	u := url.URL{
		Scheme:   "http",
		Host:     c.address,
		Path:     commandPath,
		RawQuery: url.Values{"cmd": {string(CommandGetFile)}, "path": {path}}.Encode(),
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, cmd Command, query url.Values) ([]byte, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slot }()

	query.Set("cmd", string(cmd))
	target := url.URL{
		Scheme:   "http",
		Host:     c.address,
		Path:     commandPath,
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", cmd, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &TimeoutError{Command: cmd}
		}
		return nil, &UnreachableError{Command: cmd, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnreachableError{Command: cmd, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Command: cmd, StatusCode: resp.StatusCode}
	}

	return payload, nil
}

func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params)+2)
	for key, values := range params {
		out[key] = append([]string(nil), values...)
	}
	return out
}
