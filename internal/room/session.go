// Package room implements the server-authoritative session for one
// drawing room: the single writer of the room's board and presence
// state, and the fanout of confirmed events to every member.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sketchsync/sketchsync/internal/board"
	"github.com/sketchsync/sketchsync/internal/metrics"
	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/presence"
	"github.com/sketchsync/sketchsync/internal/protocol"
)

// ErrSessionClosed is returned for operations against a stopped session.
var ErrSessionClosed = errors.New("room: session closed")

// Conn is the outbound side of one member connection. Send must never
// block: it enqueues the frame and reports false when the connection
// cannot keep up, at which point the session evicts the member.
type Conn interface {
	Send(data []byte) bool
	Close()
}

// BoardArchive parks a room's shape list while the room is empty and
// restores it when the room is next opened. Both directions are
// best-effort; the live session never depends on the archive.
type BoardArchive interface {
	SaveBoard(ctx context.Context, roomID string, shapes []models.Shape) error
	LoadBoard(ctx context.Context, roomID string) ([]models.Shape, error)
}

type joinRequest struct {
	conn   Conn
	userID string
	name   string
	reply  chan joinResult
}

type joinResult struct {
	user models.User
	err  error
}

type leaveRequest struct {
	userID string
	done   chan struct{}
}

type inboundEvent struct {
	userID string
	event  protocol.Event
}

// Session owns one room's board store and presence table. All mutation
// and fanout happens on the session's own goroutine, which is what
// yields strict server-receipt ordering within the room.
type Session struct {
	id      string
	board   *board.Store
	roster  *presence.Table
	members map[string]Conn

	joinc    chan joinRequest
	leavec   chan leaveRequest
	eventc   chan inboundEvent
	countc   chan chan int
	snapc    chan chan []models.Shape
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	archive BoardArchive
	logger  zerolog.Logger
}

// NewSession creates a session for roomID, restores any parked board
// from the archive, and starts the session goroutine. archive may be
// nil for purely in-memory rooms.
func NewSession(ctx context.Context, roomID string, archive BoardArchive, logger zerolog.Logger) *Session {
	s := &Session{
		id:      roomID,
		board:   board.NewStore(),
		roster:  presence.NewTable(),
		members: make(map[string]Conn),
		joinc:   make(chan joinRequest),
		leavec:  make(chan leaveRequest),
		eventc:  make(chan inboundEvent),
		countc:  make(chan chan int),
		snapc:   make(chan chan []models.Shape),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		archive: archive,
		logger:  logger.With().Str("room", roomID).Logger(),
	}

	if archive != nil {
		shapes, err := archive.LoadBoard(ctx, roomID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("board restore failed, starting empty")
		} else if len(shapes) > 0 {
			if err := s.board.Replace(shapes); err != nil {
				s.logger.Warn().Err(err).Msg("parked board rejected, starting empty")
			}
		}
	}

	metrics.RoomsActive.Inc()
	go s.run()
	return s
}

// ID returns the room id.
func (s *Session) ID() string { return s.id }

// Join registers a connection under the given identity, sends it the
// init snapshot and announces it to the rest of the room. The returned
// user carries the server-assigned color.
func (s *Session) Join(ctx context.Context, conn Conn, userID, name string) (models.User, error) {
	req := joinRequest{conn: conn, userID: userID, name: name, reply: make(chan joinResult, 1)}
	select {
	case s.joinc <- req:
	case <-s.quit:
		return models.User{}, ErrSessionClosed
	case <-ctx.Done():
		return models.User{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.user, res.err
	case <-s.quit:
		return models.User{}, ErrSessionClosed
	case <-ctx.Done():
		return models.User{}, ctx.Err()
	}
}

// Leave removes the member and broadcasts user_leave. It is safe to
// call more than once and from any goroutine; only the first call for a
// connected member has an effect.
func (s *Session) Leave(userID string) {
	req := leaveRequest{userID: userID, done: make(chan struct{})}
	select {
	case s.leavec <- req:
		<-req.done
	case <-s.quit:
	}
}

// Submit hands a client event to the session for serialized application.
func (s *Session) Submit(ctx context.Context, userID string, ev protocol.Event) error {
	select {
	case s.eventc <- inboundEvent{userID: userID, event: ev}:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the session down, closing every member connection and
// parking a non-empty board. It blocks until the session goroutine has
// exited, so a caller draining rooms at process exit can rely on the
// save having happened.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.stopped
}

// MemberCount reports the roster size. It round-trips through the
// session goroutine, so the answer is consistent with event order.
func (s *Session) MemberCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case s.countc <- reply:
	case <-s.quit:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-s.quit:
		return 0
	case <-ctx.Done():
		return 0
	}
}

// BoardSnapshot returns a copy of the authoritative shape list,
// serialized through the session goroutine.
func (s *Session) BoardSnapshot(ctx context.Context) []models.Shape {
	reply := make(chan []models.Shape, 1)
	select {
	case s.snapc <- reply:
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case snap := <-reply:
		return snap
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *Session) run() {
	defer close(s.stopped)
	defer metrics.RoomsActive.Dec()
	for {
		select {
		case req := <-s.joinc:
			s.handleJoin(req)
		case req := <-s.leavec:
			s.handleLeave(req.userID)
			close(req.done)
		case reply := <-s.countc:
			reply <- s.roster.Len()
		case reply := <-s.snapc:
			reply <- s.board.Snapshot()
		case in := <-s.eventc:
			s.handleEvent(in.userID, in.event)
		case <-s.quit:
			for id, conn := range s.members {
				conn.Close()
				delete(s.members, id)
				metrics.MembersConnected.Dec()
			}
			// Members may still be connected at shutdown, so the park
			// on last-leave never ran. Save synchronously: Stop holds
			// the process open until this returns.
			if s.archive != nil && s.board.Len() > 0 {
				s.saveBoard(s.board.Snapshot())
			}
			return
		}
	}
}

func (s *Session) handleJoin(req joinRequest) {
	// A reconnect racing its own stale connection evicts the old one.
	if _, ok := s.members[req.userID]; ok {
		s.handleLeave(req.userID)
	}

	user := models.User{ID: req.userID, Name: req.name, Color: s.roster.NextColor()}
	s.roster.Join(user)
	s.members[req.userID] = req.conn
	metrics.MembersConnected.Inc()

	init, err := protocol.Init(s.board.Snapshot(), s.roster.Roster()).Encode()
	if err != nil {
		s.logger.Error().Err(err).Msg("encode init")
		s.handleLeave(req.userID)
		req.reply <- joinResult{err: err}
		return
	}
	if !req.conn.Send(init) {
		s.logger.Warn().Str("user", req.userID).Msg("init send failed, evicting")
		s.handleLeave(req.userID)
		req.reply <- joinResult{err: ErrSessionClosed}
		return
	}

	s.broadcast(protocol.UserJoin(user), req.userID)
	s.logger.Info().Str("user", req.userID).Str("name", req.name).Int("members", s.roster.Len()).Msg("user joined")
	req.reply <- joinResult{user: user}
}

func (s *Session) handleLeave(userID string) {
	user, ok := s.roster.Leave(userID)
	if !ok {
		return
	}
	if conn, ok := s.members[userID]; ok {
		conn.Close()
		delete(s.members, userID)
	}
	metrics.MembersConnected.Dec()

	s.broadcast(protocol.UserLeave(user), userID)
	s.logger.Info().Str("user", userID).Int("members", s.roster.Len()).Msg("user left")

	if s.roster.Len() == 0 {
		s.parkBoard()
	}
}

func (s *Session) handleEvent(userID string, ev protocol.Event) {
	user, ok := s.roster.User(userID)
	if !ok {
		return // already evicted, late event
	}
	metrics.EventsTotal.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case protocol.TypeShapeAdd:
		if ev.Shape == nil {
			metrics.EventsRejected.Inc()
			return
		}
		shape := *ev.Shape
		shape.UserID = userID // authorship is not client-asserted
		if err := s.board.Append(shape); err != nil {
			// Client-generated ID collision: drop silently, per policy.
			s.logger.Warn().Err(err).Str("user", userID).Msg("shape_add rejected")
			metrics.EventsRejected.Inc()
			return
		}
		s.broadcast(protocol.ShapeAdd(shape), "")

	case protocol.TypeShapesUpdate:
		if err := s.board.Replace(ev.Shapes); err != nil {
			s.logger.Warn().Err(err).Str("user", userID).Msg("shapes_update rejected")
			metrics.EventsRejected.Inc()
			return
		}
		s.broadcast(protocol.ShapesUpdate(s.board.Snapshot()), "")

	case protocol.TypeCursorUpdate:
		if ev.Cursor == nil {
			metrics.EventsRejected.Inc()
			return
		}
		cursor := *ev.Cursor
		cursor.UserID = userID
		cursor.UserName = user.Name
		cursor.Color = user.Color
		s.roster.SetCursor(cursor)
		s.broadcast(protocol.CursorUpdate(cursor), userID)
	}
}

// broadcast fans an event out to every member except excludeUserID.
// Members whose outbound queue is full are evicted after the loop so a
// slow connection never stalls the rest of the room.
func (s *Session) broadcast(ev protocol.Event, excludeUserID string) {
	data, err := ev.Encode()
	if err != nil {
		s.logger.Error().Err(err).Str("type", ev.Type).Msg("encode broadcast")
		return
	}

	var stalled []string
	for id, conn := range s.members {
		if id == excludeUserID {
			continue
		}
		if !conn.Send(data) {
			stalled = append(stalled, id)
		}
	}
	for _, id := range stalled {
		s.logger.Warn().Str("user", id).Msg("outbound queue full, evicting")
		metrics.BroadcastDrops.Inc()
		s.handleLeave(id)
	}
}

// parkBoard persists the shape list when the room goes idle so a later
// process can restore it. Best-effort, off the session goroutine.
func (s *Session) parkBoard() {
	if s.archive == nil {
		return
	}
	go s.saveBoard(s.board.Snapshot())
}

func (s *Session) saveBoard(shapes []models.Shape) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.SaveBoard(ctx, s.id, shapes); err != nil {
		s.logger.Warn().Err(err).Msg("board park failed")
	}
}
