// Package sketchsync provides a Go client for the SketchSync
// collaborative drawing server: a thin REST client for accounts and
// rooms, and a websocket room connection that layers optimistic local
// editing with undo/redo on top of the server's event stream.
package sketchsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/protocol"
)

// Client is a SketchSync API client.
type Client struct {
	BaseURL    string
	Token      string
	Identity   models.Identity
	HTTPClient *http.Client
}

// NewClient creates a new client against the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type authResponse struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e errorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, name, password string) error {
	body := map[string]string{"email": email, "name": name, "password": password}
	return c.doJSON(ctx, http.MethodPost, "/auth/register", body, nil)
}

// Login exchanges credentials for a bearer token and stores it on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	c.Identity = resp.User
	return nil
}

// Anonymous obtains a short-lived guest token for the given display
// name and stores it on the client.
func (c *Client) Anonymous(ctx context.Context, name string) error {
	var resp authResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/anonymous", map[string]string{"name": name}, &resp); err != nil {
		return err
	}
	c.Token = resp.Token
	c.Identity = resp.User
	return nil
}

// CreateRoom creates a drawing room.
func (c *Client) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	var room models.Room
	if err := c.doJSON(ctx, http.MethodPost, "/rooms", map[string]string{"name": name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRooms lists the rooms created by the authenticated account.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.doJSON(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// VerifyRoom checks that a room id resolves to a known room.
func (c *Client) VerifyRoom(ctx context.Context, roomID string) error {
	return c.doJSON(ctx, http.MethodGet, "/rooms/verify/"+url.PathEscape(roomID), nil, nil)
}

// ConnState is the lifecycle state of a room connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateSynced
	StateReconciling
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSynced:
		return "synced"
	case StateReconciling:
		return "reconciling"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// RoomConn is a live membership in one room. All exported methods are
// safe for concurrent use; the reconciler serializes the UI and network
// paths internally.
type RoomConn struct {
	client *Client
	roomID string
	rec    *Reconciler

	conn    *websocket.Conn
	writeMu sync.Mutex
	state   atomic.Int32
	changed chan struct{}
	done    chan struct{}
	closeMu sync.Once
}

// JoinRoom dials the room's websocket, waits for the init snapshot and
// returns a synced connection.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*RoomConn, error) {
	rc := &RoomConn{
		client:  c,
		roomID:  roomID,
		rec:     NewReconciler(),
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	rc.rec.SetSelf(models.User{ID: c.Identity.UserID, Name: c.Identity.Name})
	if err := rc.connect(ctx); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *RoomConn) wsURL() string {
	base := strings.Replace(rc.client.BaseURL, "http", "ws", 1)
	return base + "/ws/rooms/" + url.PathEscape(rc.roomID) + "?token=" + url.QueryEscape(rc.client.Token)
}

func (rc *RoomConn) connect(ctx context.Context) error {
	rc.state.Store(int32(StateConnecting))

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rc.wsURL(), nil)
	if err != nil {
		rc.state.Store(int32(StateDisconnected))
		if resp != nil {
			return fmt.Errorf("join room %s: status %d", rc.roomID, resp.StatusCode)
		}
		return fmt.Errorf("join room %s: %w", rc.roomID, err)
	}
	rc.state.Store(int32(StateAuthenticating))

	// The first frame after the handshake must be init.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		rc.state.Store(int32(StateDisconnected))
		return fmt.Errorf("awaiting init: %w", err)
	}
	var init protocol.Event
	if err := json.Unmarshal(data, &init); err != nil || init.Type != protocol.TypeInit {
		conn.Close()
		rc.state.Store(int32(StateDisconnected))
		return fmt.Errorf("unexpected first frame %q", data)
	}
	conn.SetReadDeadline(time.Time{})

	// A fresh snapshot discards any history from before a reconnect.
	rc.rec.ApplyInit(init.Shapes, init.Users)

	rc.writeMu.Lock()
	rc.conn = conn
	rc.writeMu.Unlock()
	rc.state.Store(int32(StateSynced))
	rc.notify()

	go rc.readLoop(conn)
	return nil
}

// Reconnect re-dials after a disconnect. The shape list and history
// held locally are stale and are replaced by the fresh init snapshot.
func (rc *RoomConn) Reconnect(ctx context.Context) error {
	if rc.State() != StateDisconnected {
		return fmt.Errorf("reconnect from state %s", rc.State())
	}
	return rc.connect(ctx)
}

func (rc *RoomConn) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		rc.state.Store(int32(StateDisconnected))
		rc.notify()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev protocol.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue // tolerate unknown frames from newer servers
		}

		switch ev.Type {
		case protocol.TypeShapeAdd, protocol.TypeShapesUpdate:
			rc.state.Store(int32(StateReconciling))
			rc.rec.ApplyServer(ev)
			rc.state.Store(int32(StateSynced))
		default:
			rc.rec.ApplyServer(ev)
		}
		rc.notify()
	}
}

// notify coalesces change signals for redraw loops.
func (rc *RoomConn) notify() {
	select {
	case rc.changed <- struct{}{}:
	default:
	}
}

// Changed delivers a coalesced signal whenever local or remote state
// changed, suitable for driving a render loop.
func (rc *RoomConn) Changed() <-chan struct{} {
	return rc.changed
}

// State returns the connection's lifecycle state.
func (rc *RoomConn) State() ConnState {
	return ConnState(rc.state.Load())
}

func (rc *RoomConn) send(ev protocol.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	rc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return rc.conn.WriteMessage(websocket.TextMessage, data)
}

// AddShape creates a shape from a completed draw gesture, applies it
// optimistically and sends it to the server. The shape ID is a ULID, so
// collisions across clients are negligible and the server echo
// reconfirms rather than duplicates the local entry.
func (rc *RoomConn) AddShape(kind models.ShapeKind, x1, y1, x2, y2 float64, color string) (models.Shape, error) {
	self := rc.rec.Self()
	shape := models.Shape{
		ID:     ulid.Make().String(),
		Kind:   kind,
		X1:     x1,
		Y1:     y1,
		X2:     x2,
		Y2:     y2,
		Color:  color,
		UserID: self.ID,
	}
	ev := rc.rec.LocalShapeAdd(shape)
	rc.notify()
	if err := rc.send(ev); err != nil {
		return shape, err
	}
	return shape, nil
}

// Undo reverts the latest local mutation and propagates the resulting
// list. It reports false when the undo stack is empty.
func (rc *RoomConn) Undo() (bool, error) {
	ev, ok := rc.rec.Undo()
	if !ok {
		return false, nil
	}
	rc.notify()
	return true, rc.send(ev)
}

// Redo reapplies the latest undone mutation.
func (rc *RoomConn) Redo() (bool, error) {
	ev, ok := rc.rec.Redo()
	if !ok {
		return false, nil
	}
	rc.notify()
	return true, rc.send(ev)
}

// SendCursor reports our pointer position. Fire-and-forget: cursor
// frames are advisory and a failed send is ignored here, the read side
// will notice a dead connection first.
func (rc *RoomConn) SendCursor(x, y float64) {
	self := rc.rec.Self()
	_ = rc.send(protocol.CursorUpdate(models.Cursor{X: x, Y: y, UserID: self.ID}))
}

// Shapes returns the current locally reconciled shape list.
func (rc *RoomConn) Shapes() []models.Shape {
	return rc.rec.Shapes()
}

// Users returns the current roster view.
func (rc *RoomConn) Users() []models.User {
	return rc.rec.Users()
}

// Cursors returns the peers' latest cursor positions.
func (rc *RoomConn) Cursors() map[string]models.Cursor {
	return rc.rec.Cursors()
}

// Reconciler exposes the underlying reconciler, mainly for tests and
// embedding UIs.
func (rc *RoomConn) Reconciler() *Reconciler {
	return rc.rec
}

// Close tears the connection down. Safe to call more than once.
func (rc *RoomConn) Close() error {
	var err error
	rc.closeMu.Do(func() {
		close(rc.done)
		rc.writeMu.Lock()
		conn := rc.conn
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = conn.Close()
		}
		rc.writeMu.Unlock()
		rc.state.Store(int32(StateDisconnected))
	})
	return err
}
