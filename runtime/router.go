package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var _ contract.IRouter = (*Router)(nil)

type Set map[domain.RoomID]struct{}

// Room is the membership set of one chat room.
// Members are only added or removed through the Router, which keeps its
// reverse index and the room map consistent with the set.
type Room struct {
	id      domain.RoomID
	mu      sync.RWMutex
	members map[string]contract.Connection // map connection id -> connection
}

func newRoom(id domain.RoomID) *Room {
	return &Room{id: id, members: make(map[string]contract.Connection)}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) Contains(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[connID]
	return ok
}

// Members returns an immutable snapshot of the current members.
func (r *Room) Members() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.members)
}

func (r *Room) add(conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[conn.ID()]; ok {
		return false
	}
	r.members[conn.ID()] = conn
	return true
}

func (r *Room) remove(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[connID]; !ok {
		return false
	}
	delete(r.members, connID)
	return true
}

type RoomStats struct {
	RoomID  domain.RoomID `json:"roomId"`
	Members int           `json:"members"`
}

// Router maps room ids to their membership and fans messages out to members.
// Lock order is Router.mu then Room.mu. No lock is held while sending.
type Router struct {
	mu          sync.RWMutex
	log         *slog.Logger
	metrics     *observability.Metrics
	rooms       map[domain.RoomID]*Room
	memberships map[string]Set // map connection id -> joined rooms
	parallelism int
}

func NewRouter(log *slog.Logger, metrics *observability.Metrics, parallelism int) *Router {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Router{
		log:         log,
		metrics:     metrics,
		rooms:       make(map[domain.RoomID]*Room),
		memberships: make(map[string]Set),
		parallelism: parallelism,
	}
}

// GetOrCreateRoom returns the room for roomID, creating an empty one on first use.
// Two calls return the same handle as long as the room has not been dropped for being empty.
func (r *Router) GetOrCreateRoom(roomID domain.RoomID) *Room {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(roomID)
}

func (r *Router) getOrCreateLocked(roomID domain.RoomID) *Room {
	if room, ok := r.rooms[roomID]; ok {
		return room
	}
	room := newRoom(roomID)
	r.rooms[roomID] = room
	r.metrics.Rooms.Set(float64(len(r.rooms)))
	r.log.Debug("Room created", "room_id", roomID)
	return room
}

// Join adds conn to the room. Joining twice is a no-op and returns false.
func (r *Router) Join(roomID domain.RoomID, conn contract.Connection) bool {
	_, added := r.join(roomID, conn)
	return added
}

func (r *Router) join(roomID domain.RoomID, conn contract.Connection) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.getOrCreateLocked(roomID)
	if !room.add(conn) {
		return room, false
	}
	joined, ok := r.memberships[conn.ID()]
	if !ok {
		joined = make(Set)
		r.memberships[conn.ID()] = joined
	}
	joined[roomID] = struct{}{}
	return room, true
}

// Leave removes conn from one room and drops the room once nobody is left.
func (r *Router) Leave(roomID domain.RoomID, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.leaveLocked(roomID, conn.ID())
	if joined, ok := r.memberships[conn.ID()]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, conn.ID())
		}
	}
	return removed
}

// LeaveAll purges conn from every room it joined and returns those rooms.
func (r *Router) LeaveAll(conn contract.Connection) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.memberships[conn.ID()]
	if !ok {
		return nil
	}
	delete(r.memberships, conn.ID())

	left := make([]domain.RoomID, 0, len(joined))
	for roomID := range joined {
		if r.leaveLocked(roomID, conn.ID()) {
			left = append(left, roomID)
		}
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	return left
}

func (r *Router) leaveLocked(roomID domain.RoomID, connID string) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	removed := room.remove(connID)
	r.pruneLocked(room)
	return removed
}

func (r *Router) pruneLocked(room *Room) {
	if room.Len() > 0 {
		return
	}
	if current, ok := r.rooms[room.id]; ok && current == room {
		delete(r.rooms, room.id)
		r.metrics.Rooms.Set(float64(len(r.rooms)))
		r.log.Debug("Room removed", "room_id", room.id)
	}
}

func (r *Router) prune(roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		r.pruneLocked(room)
	}
}

// HandleMessage applies an inbound message from conn:
//  1. the room is resolved, and created if nobody used it yet
//  2. ENTER joins conn to the room
//  3. the message is broadcast to every member, sender included
//
// LEAVE is broadcast first so the leaving member sees it too, then applied.
func (r *Router) HandleMessage(ctx context.Context, conn contract.Connection, msg domain.ChatMessage) (domain.Delivery, error) {
	room := r.GetOrCreateRoom(msg.RoomID)

	if msg.IsJoin() {
		var added bool
		if room, added = r.join(msg.RoomID, conn); added {
			r.log.Info("Sender entered room", "sender_id", msg.SenderID, "room_id", msg.RoomID, "conn_id", conn.ID())
		}
	}

	delivery, err := r.fanout(ctx, msg.RoomID, room.Members(), msg)

	if msg.IsLeave() && r.Leave(msg.RoomID, conn) {
		r.log.Info("Sender left room", "sender_id", msg.SenderID, "room_id", msg.RoomID, "conn_id", conn.ID())
	}
	r.prune(msg.RoomID)
	return delivery, err
}

// Broadcast sends msg to a snapshot of the room members without touching membership.
// A room nobody joined yields an empty delivery.
func (r *Router) Broadcast(ctx context.Context, roomID domain.RoomID, msg domain.ChatMessage) (domain.Delivery, error) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()

	var members []contract.Connection
	if ok {
		members = room.Members()
	}
	return r.fanout(ctx, roomID, members, msg)
}

// fanout encodes msg once and sends it to every member in parallel.
// A failed send is logged and counted, never retried, and does not stop the others.
func (r *Router) fanout(ctx context.Context, roomID domain.RoomID, members []contract.Connection, msg domain.ChatMessage) (domain.Delivery, error) {
	delivery := domain.Delivery{Room: roomID, Recipients: len(members)}
	if len(members) == 0 {
		return delivery, nil
	}
	if err := ctx.Err(); err != nil {
		return delivery, err
	}

	data, err := domain.Encode(msg)
	if err != nil {
		return delivery, fmt.Errorf("encoding message for room %d: %w", roomID, err)
	}

	var delivered, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(r.parallelism)
	for _, member := range members {
		g.Go(func() error {
			if err := member.Send(data); err != nil {
				failed.Add(1)
				r.log.Warn("Failed to send message",
					"conn_id", member.ID(),
					"room_id", roomID,
					"error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	delivery.Delivered = int(delivered.Load())
	delivery.Failed = int(failed.Load())
	r.metrics.Deliveries.WithLabelValues("delivered").Add(float64(delivery.Delivered))
	r.metrics.Deliveries.WithLabelValues("failed").Add(float64(delivery.Failed))
	r.log.Debug("Message broadcast",
		"room_id", roomID,
		"type", msg.MessageType,
		"recipients", delivery.Recipients,
		"failed", delivery.Failed)
	return delivery, nil
}

// Stats lists every live room with its member count, ordered by room id.
func (r *Router) Stats() []RoomStats {
	r.mu.RLock()
	rooms := lo.Values(r.rooms)
	r.mu.RUnlock()

	stats := lo.Map(rooms, func(room *Room, _ int) RoomStats {
		return RoomStats{RoomID: room.id, Members: room.Len()}
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].RoomID < stats[j].RoomID })
	return stats
}

// RoomsOf returns the rooms conn currently belongs to.
func (r *Router) RoomsOf(connID string) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := lo.Keys(r.memberships[connID])
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// Membership tells whether conn is in room.
func (r *Router) Membership(roomID domain.RoomID, connID string) domain.MembershipState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.memberships[connID][roomID]; ok {
		return domain.Joined
	}
	return domain.Unjoined
}

func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
