package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roomwatch/internal/handlers"
	"roomwatch/internal/models"
	"roomwatch/internal/utils"

	"github.com/gorilla/websocket"
)

// ErrAuthenticationFailed indicates the dashboard rejected the token
var ErrAuthenticationFailed = errors.New("authentication failed")

// Client talks to a running dashboard over REST and the events websocket
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for a dashboard at baseURL (http or https)
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("dashboard URL %q must be http(s)://host[:port]", baseURL)
	}
	return &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = u.Path + path
	if query == nil {
		query = url.Values{}
	}
	if c.token != "" {
		query.Set("token", c.token)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthenticationFailed
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchRooms lists the rooms the token covers
func (c *Client) FetchRooms(ctx context.Context) ([]handlers.RoomSummary, error) {
	var body struct {
		Rooms []handlers.RoomSummary `json:"rooms"`
	}
	if err := c.getJSON(ctx, "/api/rooms", nil, &body); err != nil {
		return nil, err
	}
	return body.Rooms, nil
}

// FetchLogs returns up to count entries for a room, newest first
func (c *Client) FetchLogs(ctx context.Context, room string, count int) ([]models.LogEntry, error) {
	var body struct {
		Entries []models.LogEntry `json:"entries"`
	}
	query := url.Values{"count": {fmt.Sprint(count)}}
	if err := c.getJSON(ctx, "/api/rooms/"+url.PathEscape(room)+"/logs", query, &body); err != nil {
		return nil, err
	}
	return body.Entries, nil
}

// Snapshot loads every room and its recent log in one go
func (c *Client) Snapshot(ctx context.Context) RoomsLoadedMsg {
	rooms, err := c.FetchRooms(ctx)
	if err != nil {
		return RoomsLoadedMsg{Error: err}
	}

	logs := make(map[string][]models.LogEntry, len(rooms))
	for _, r := range rooms {
		entries, err := c.FetchLogs(ctx, r.Name, maxEntriesPerRoom)
		if err != nil {
			return RoomsLoadedMsg{Error: err}
		}
		logs[r.Name] = entries
	}
	return RoomsLoadedMsg{Rooms: rooms, Logs: logs}
}

func (c *Client) eventsURL() string {
	u, _ := url.Parse(c.endpoint("/ws/events", nil))
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// Stream delivers live events until ctx is done, reconnecting with backoff.
// It gives up only when the dashboard rejects the token.
func (c *Client) Stream(ctx context.Context, onEvent func(models.Event), onStatus func(ConnectionStatus, error)) error {
	backoff := utils.NewBackoff(time.Second, 60*time.Second)
	status := StatusConnecting

	for {
		onStatus(status, nil)
		err := c.streamOnce(ctx, func() {
			backoff.Reset()
			onStatus(StatusConnected, nil)
		}, onEvent)

		if ctx.Err() != nil {
			onStatus(StatusDisconnected, nil)
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthenticationFailed) {
			onStatus(StatusError, err)
			return err
		}

		onStatus(StatusReconnecting, err)
		if err := backoff.Wait(ctx); err != nil {
			onStatus(StatusDisconnected, nil)
			return err
		}
		status = StatusReconnecting
	}
}

func (c *Client) streamOnce(ctx context.Context, onConnected func(), onEvent func(models.Event)) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.eventsURL(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrAuthenticationFailed
		}
		return err
	}
	defer conn.Close()

	onConnected()

	// Unblock ReadJSON on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		if evt.Room == "" {
			continue // connected / pong
		}
		onEvent(evt)
	}
}
