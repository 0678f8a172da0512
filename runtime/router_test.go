package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestRouter() *Router {
	return NewRouter(logs.GetLoggerFromLevel(slog.LevelDebug), observability.NewMetrics(), 4)
}

func decode(t *testing.T, payload string) domain.ChatMessage {
	t.Helper()
	msg, err := domain.Decode([]byte(payload))
	require.NoError(t, err)
	return msg
}

func TestRouter_GetOrCreateRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	conn := newFakeConn("a")

	// When the same room is resolved twice
	first := router.GetOrCreateRoom(1)
	second := router.GetOrCreateRoom(1)

	// Then both handles point to the same membership set
	req.Same(first, second)
	router.Join(1, conn)
	req.True(first.Contains(conn.ID()))
	req.Equal(1, second.Len())

	// And another id gets another set
	req.NotSame(first, router.GetOrCreateRoom(2))
}

func TestRouter_Join_Twice(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	conn := newFakeConn("a")

	req.True(router.Join(1, conn))
	req.False(router.Join(1, conn))

	req.Equal(1, router.GetOrCreateRoom(1).Len())
	req.Equal([]domain.RoomID{1}, router.RoomsOf(conn.ID()))
}

func TestRouter_HandleMessage_EnterThenTalk(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	ctx := context.Background()
	a := newFakeConn("a")

	// Given A enters room 1
	enter := decode(t, `{"chatRoomId":1,"senderId":"a","messageType":"ENTER"}`)
	delivery, err := router.HandleMessage(ctx, a, enter)
	req.NoError(err)
	req.Equal(1, delivery.Recipients)
	req.True(router.GetOrCreateRoom(1).Contains(a.ID()))

	// When A talks
	talk := decode(t, `{"chatRoomId":1,"senderId":"a","messageType":"TALK","text":"hi"}`)
	delivery, err = router.HandleMessage(ctx, a, talk)

	// Then A gets its own message back
	req.NoError(err)
	req.Equal(domain.Delivery{Room: 1, Recipients: 1, Delivered: 1}, delivery)
	received := a.Received()
	req.Len(received, 2)
	req.JSONEq(`{"chatRoomId":1,"senderId":"a","messageType":"ENTER"}`, received[0])
	req.JSONEq(`{"chatRoomId":1,"senderId":"a","messageType":"TALK","text":"hi"}`, received[1])
}

func TestRouter_HandleMessage_TwoMembers(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	ctx := context.Background()
	a, b := newFakeConn("a"), newFakeConn("b")

	_, err := router.HandleMessage(ctx, a, decode(t, `{"chatRoomId":1,"senderId":"a","messageType":"ENTER"}`))
	req.NoError(err)
	_, err = router.HandleMessage(ctx, b, decode(t, `{"chatRoomId":1,"senderId":"b","messageType":"ENTER"}`))
	req.NoError(err)

	// When A talks
	talk := `{"chatRoomId":1,"senderId":"a","messageType":"TALK","text":"hello b"}`
	delivery, err := router.HandleMessage(ctx, a, decode(t, talk))

	// Then both members receive it
	req.NoError(err)
	req.Equal(2, delivery.Delivered)
	req.JSONEq(talk, a.Received()[len(a.Received())-1])
	req.JSONEq(talk, b.Received()[len(b.Received())-1])

	// And B did not see A's ENTER, which happened before B joined
	req.Len(b.Received(), 2)
}

func TestRouter_HandleMessage_TalkWithoutJoin(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	outsider := newFakeConn("outsider")

	// When a message targets a room nobody joined
	delivery, err := router.HandleMessage(context.Background(), outsider,
		decode(t, `{"chatRoomId":7,"senderId":"x","messageType":"TALK","text":"anyone?"}`))

	// Then nothing fails, nobody receives it, and no empty room is left behind
	req.NoError(err)
	req.Zero(delivery.Recipients)
	req.Empty(outsider.Received())
	req.Empty(router.Stats())
}

func TestRouter_HandleMessage_UnknownTypeIsPassThrough(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	ctx := context.Background()
	a, b := newFakeConn("a"), newFakeConn("b")
	router.Join(1, a)

	delivery, err := router.HandleMessage(ctx, b, decode(t, `{"chatRoomId":1,"senderId":"b","messageType":"WAVE"}`))

	req.NoError(err)
	req.Equal(1, delivery.Delivered)
	req.Len(a.Received(), 1)
	// B is not a member: unknown types never join
	req.False(router.GetOrCreateRoom(1).Contains(b.ID()))
	req.Empty(b.Received())
}

func TestRouter_HandleMessage_Leave(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	ctx := context.Background()
	a, b := newFakeConn("a"), newFakeConn("b")
	router.Join(1, a)
	router.Join(1, b)

	// When B leaves
	delivery, err := router.HandleMessage(ctx, b, decode(t, `{"chatRoomId":1,"senderId":"b","messageType":"LEAVE"}`))

	// Then everybody including B saw the LEAVE, and B is gone afterwards
	req.NoError(err)
	req.Equal(2, delivery.Delivered)
	req.Len(b.Received(), 1)
	req.False(router.GetOrCreateRoom(1).Contains(b.ID()))
	req.True(router.GetOrCreateRoom(1).Contains(a.ID()))
}

func TestRouter_Broadcast_OneFailingSend(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	router := newTestRouter()

	// Given N members, one of which has a broken channel
	const n = 5
	healthy := make([]*fakeConn, 0, n-1)
	for i := 0; i < n-1; i++ {
		conn := newFakeConn(fmt.Sprintf("healthy-%d", i))
		healthy = append(healthy, conn)
		router.Join(1, conn)
	}
	broken := mocks.NewMockConnection(ctrl)
	broken.EXPECT().ID().Return("broken").AnyTimes()
	broken.EXPECT().Send(gomock.Any()).Return(errors.ErrConnectionClosed).Times(1)
	router.Join(1, broken)

	// When a message is broadcast
	delivery, err := router.Broadcast(context.Background(), 1,
		decode(t, `{"chatRoomId":1,"senderId":"a","messageType":"TALK","text":"hi"}`))

	// Then the N-1 others still receive it
	req.NoError(err)
	req.Equal(domain.Delivery{Room: 1, Recipients: n, Delivered: n - 1, Failed: 1}, delivery)
	for _, conn := range healthy {
		req.Len(conn.Received(), 1, "conn=%s", conn.ID())
	}
}

func TestRouter_Broadcast_ClosedConnection(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	open, closed := newFakeConn("open"), newFakeConn("closed")
	router.Join(1, open)
	router.Join(1, closed)
	_ = closed.Close()

	delivery, err := router.Broadcast(context.Background(), 1,
		decode(t, `{"chatRoomId":1,"messageType":"TALK"}`))

	req.NoError(err)
	req.Equal(1, delivery.Delivered)
	req.Equal(1, delivery.Failed)
}

func TestRouter_Broadcast_DoesNotCreateRoom(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()

	delivery, err := router.Broadcast(context.Background(), 99, decode(t, `{"chatRoomId":99,"messageType":"TALK"}`))

	req.NoError(err)
	req.Zero(delivery.Recipients)
	req.Empty(router.Stats())
}

func TestRouter_Broadcast_CanceledContext(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	conn := newFakeConn("a")
	router.Join(1, conn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Broadcast(ctx, 1, decode(t, `{"chatRoomId":1,"messageType":"TALK"}`))

	req.ErrorIs(err, context.Canceled)
	req.Empty(conn.Received())
}

func TestRouter_LeaveAll_PurgesEveryRoom(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	a, b := newFakeConn("a"), newFakeConn("b")

	// Given A joined three rooms and B shares one of them
	router.Join(3, a)
	router.Join(1, a)
	router.Join(2, a)
	router.Join(2, b)

	// When A disconnects
	left := router.LeaveAll(a)

	// Then A is purged everywhere, rooms left empty are dropped
	req.Equal([]domain.RoomID{1, 2, 3}, left)
	req.Empty(router.RoomsOf(a.ID()))
	req.Equal(domain.Unjoined, router.Membership(2, a.ID()))
	req.Equal(domain.Joined, router.Membership(2, b.ID()))
	req.Equal([]RoomStats{{RoomID: 2, Members: 1}}, router.Stats())

	// And a broadcast no longer reaches A
	delivery, err := router.Broadcast(context.Background(), 2, decode(t, `{"chatRoomId":2,"messageType":"TALK"}`))
	req.NoError(err)
	req.Equal(1, delivery.Recipients)
	req.Empty(a.Received())

	// And purging again is harmless
	req.Nil(router.LeaveAll(a))
}

func TestRouter_Leave_DropsEmptyRoom(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	a := newFakeConn("a")
	router.Join(1, a)
	before := router.GetOrCreateRoom(1)

	req.True(router.Leave(1, a))
	req.False(router.Leave(1, a))
	req.Empty(router.Stats())

	// A new join recreates the room from scratch
	router.Join(1, a)
	req.NotSame(before, router.GetOrCreateRoom(1))
}

// Under concurrent joins followed by one broadcast, deliveries equal the post-join snapshot.
func TestRouter_ConcurrentJoins_ThenBroadcast(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	const m = 200

	conns := make([]*fakeConn, m)
	for i := range conns {
		conns[i] = newFakeConn(uuid.NewString())
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := router.HandleMessage(context.Background(), conn,
				decode(t, fmt.Sprintf(`{"chatRoomId":1,"senderId":%q,"messageType":"ENTER"}`, conn.ID())))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snapshot := router.GetOrCreateRoom(1).Len()
	req.Equal(m, snapshot)

	// When one broadcast happens after every join
	before := make(map[string]int, m)
	for _, conn := range conns {
		before[conn.ID()] = len(conn.Received())
	}
	delivery, err := router.Broadcast(context.Background(), 1, decode(t, `{"chatRoomId":1,"messageType":"TALK","text":"all"}`))

	// Then every member got exactly one copy
	req.NoError(err)
	req.Equal(snapshot, delivery.Delivered)
	for _, conn := range conns {
		req.Equal(before[conn.ID()]+1, len(conn.Received()))
	}
}

func TestRouter_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	req := require.New(t)
	router := newTestRouter()
	ctx := context.Background()
	msg := decode(t, `{"chatRoomId":1,"messageType":"TALK"}`)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		conn := newFakeConn(fmt.Sprintf("c-%d", i))
		wg.Add(3)
		go func() { defer wg.Done(); router.Join(1, conn) }()
		go func() { defer wg.Done(); _, _ = router.Broadcast(ctx, 1, msg) }()
		go func() { defer wg.Done(); router.LeaveAll(conn) }()
	}
	wg.Wait()

	for _, stat := range router.Stats() {
		req.Positive(stat.Members)
	}
}
