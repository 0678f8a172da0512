package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"context"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	registry *mocks.MockIConnectionRegistry
	router   *mocks.MockIRouter
	censor   *mocks.MockCensor
	bus      *mocks.MockMessageBus
	conn     *mocks.MockConnection
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	conn := mocks.NewMockConnection(ctrl)
	conn.EXPECT().ID().Return("conn-1").AnyTimes()
	return fixture{
		registry: mocks.NewMockIConnectionRegistry(ctrl),
		router:   mocks.NewMockIRouter(ctrl),
		censor:   mocks.NewMockCensor(ctrl),
		bus:      mocks.NewMockMessageBus(ctrl),
		conn:     conn,
		metrics:  observability.NewMetrics(),
	}
}

func (f fixture) service(censor contract.Censor, bus contract.MessageBus) *RelayService {
	return NewRelayService(logs.GetLoggerFromLevel(slog.LevelDebug), f.registry, f.router, f.metrics, censor, bus, "relay-1")
}

func TestRelayService_OnOpen(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.registry.EXPECT().Connect(f.conn)
	f.registry.EXPECT().Len().Return(1)

	f.service(nil, nil).OnOpen(f.conn)

	req.Equal(1.0, testutil.ToFloat64(f.metrics.Connections))
}

func TestRelayService_OnClose(t *testing.T) {
	t.Run("should purge the connection from its rooms", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		gomock.InOrder(
			f.registry.EXPECT().Disconnect(f.conn, "going away").Return(true),
			f.registry.EXPECT().Len().Return(0),
			f.router.EXPECT().LeaveAll(f.conn).Return([]domain.RoomID{1, 2}),
		)

		f.service(nil, nil).OnClose(f.conn, "going away")

		req.Zero(testutil.ToFloat64(f.metrics.RegistryInconsistencies))
	})

	t.Run("should count an unknown connection and still purge it", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.registry.EXPECT().Disconnect(f.conn, "eof").Return(false)
		f.registry.EXPECT().Len().Return(0)
		f.router.EXPECT().LeaveAll(f.conn).Return(nil)

		f.service(nil, nil).OnClose(f.conn, "eof")

		req.Equal(1.0, testutil.ToFloat64(f.metrics.RegistryInconsistencies))
	})
}

func TestRelayService_OnTextFrame(t *testing.T) {
	ctx := context.Background()

	t.Run("should drop an undecodable frame without routing it", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		// Router and bus are never called
		f.router.EXPECT().HandleMessage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		f.bus.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

		err := f.service(nil, f.bus).OnTextFrame(ctx, f.conn, []byte(`{"chatRoomId":`))

		req.ErrorIs(err, errors.ErrDecode)
		req.Equal(1.0, testutil.ToFloat64(f.metrics.DecodeErrors))
		req.Equal(1.0, testutil.ToFloat64(f.metrics.FramesReceived))
	})

	t.Run("should route then publish a decoded message", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		var routed domain.ChatMessage
		gomock.InOrder(
			f.router.EXPECT().HandleMessage(ctx, f.conn, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ contract.Connection, msg domain.ChatMessage) (domain.Delivery, error) {
					routed = msg
					return domain.Delivery{Room: msg.RoomID, Recipients: 1, Delivered: 1}, nil
				}),
			f.bus.EXPECT().Publish(ctx, gomock.Any()).
				DoAndReturn(func(_ context.Context, msg contract.BusMessage) error {
					req.Equal("relay-1", msg.Origin)
					req.Equal(routed, msg.Message)
					return nil
				}),
		)

		err := f.service(nil, f.bus).OnTextFrame(ctx, f.conn, []byte(`{"chatRoomId":1,"senderId":"a","messageType":"ENTER"}`))

		req.NoError(err)
		req.Equal(domain.RoomID(1), routed.RoomID)
		req.Equal(domain.Enter, routed.MessageType)
		req.Equal(1.0, testutil.ToFloat64(f.metrics.BusMessages.WithLabelValues("published")))
	})

	t.Run("should keep going when the bus is down", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.router.EXPECT().HandleMessage(ctx, f.conn, gomock.Any()).Return(domain.Delivery{}, nil)
		f.bus.EXPECT().Publish(ctx, gomock.Any()).Return(errors.ErrSend)

		err := f.service(nil, f.bus).OnTextFrame(ctx, f.conn, []byte(`{"chatRoomId":1,"senderId":"a","messageType":"TALK"}`))

		req.NoError(err)
		req.Zero(testutil.ToFloat64(f.metrics.BusMessages.WithLabelValues("published")))
	})

	t.Run("should return routing errors", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.router.EXPECT().HandleMessage(ctx, f.conn, gomock.Any()).Return(domain.Delivery{}, context.Canceled)

		err := f.service(nil, nil).OnTextFrame(ctx, f.conn, []byte(`{"chatRoomId":1,"senderId":"a","messageType":"TALK"}`))

		req.ErrorIs(err, context.Canceled)
	})
}

func TestRelayService_Moderation(t *testing.T) {
	ctx := context.Background()

	t.Run("should censor text fields of TALK messages", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.censor.EXPECT().Censor("you idiot").Return("you *****", []string{"idiot"})
		f.router.EXPECT().HandleMessage(ctx, f.conn, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ contract.Connection, msg domain.ChatMessage) (domain.Delivery, error) {
				text, ok := msg.Text("text")
				req.True(ok)
				req.Equal("you *****", text)
				req.Equal(`7`, string(msg.Fields["seq"]))
				return domain.Delivery{}, nil
			})

		err := f.service(f.censor, nil).OnTextFrame(ctx, f.conn,
			[]byte(`{"chatRoomId":1,"senderId":"a","messageType":"TALK","text":"you idiot","seq":7}`))

		req.NoError(err)
		req.Equal(1.0, testutil.ToFloat64(f.metrics.CensoredWords))
	})

	t.Run("should leave other message types untouched", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)

		f.censor.EXPECT().Censor(gomock.Any()).Times(0)
		f.router.EXPECT().HandleMessage(ctx, f.conn, gomock.Any()).Return(domain.Delivery{}, nil)

		err := f.service(f.censor, nil).OnTextFrame(ctx, f.conn,
			[]byte(`{"chatRoomId":1,"senderId":"a","messageType":"ENTER","text":"you idiot"}`))

		req.NoError(err)
	})
}
