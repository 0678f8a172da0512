package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

// moderatedFields are the free-form fields clients put their text in.
var moderatedFields = []string{"text", "message"}

type IRelayService interface {
	OnOpen(conn contract.Connection)
	OnClose(conn contract.Connection, reason string)
	OnTextFrame(ctx context.Context, conn contract.Connection, payload []byte) error
}

var _ IRelayService = (*RelayService)(nil)

// RelayService reacts to the transport events of every connection.
// Frames of one connection are handled in arrival order, so an ENTER is
// applied before the TALK that follows it.
type RelayService struct {
	log        *slog.Logger
	registry   contract.IConnectionRegistry
	router     contract.IRouter
	metrics    *observability.Metrics
	censor     contract.Censor
	bus        contract.MessageBus
	instanceID string
}

// NewRelayService builds the service. censor and bus are optional.
func NewRelayService(log *slog.Logger, registry contract.IConnectionRegistry, router contract.IRouter,
	metrics *observability.Metrics, censor contract.Censor, bus contract.MessageBus, instanceID string) *RelayService {
	return &RelayService{
		log:        log,
		registry:   registry,
		router:     router,
		metrics:    metrics,
		censor:     censor,
		bus:        bus,
		instanceID: instanceID,
	}
}

func (s *RelayService) OnOpen(conn contract.Connection) {
	s.registry.Connect(conn)
	s.metrics.Connections.Set(float64(s.registry.Len()))
}

// OnClose forgets the connection and removes it from every room it joined.
// Closing a connection the registry never saw is logged, never fatal.
func (s *RelayService) OnClose(conn contract.Connection, reason string) {
	if !s.registry.Disconnect(conn, reason) {
		s.metrics.RegistryInconsistencies.Inc()
	}
	s.metrics.Connections.Set(float64(s.registry.Len()))

	if rooms := s.router.LeaveAll(conn); len(rooms) > 0 {
		s.log.Debug("Connection purged from rooms", "conn_id", conn.ID(), "rooms", rooms)
	}
}

// OnTextFrame decodes one frame and routes it. An undecodable frame is dropped
// and its error returned, the connection stays open.
func (s *RelayService) OnTextFrame(ctx context.Context, conn contract.Connection, payload []byte) error {
	s.metrics.FramesReceived.Inc()

	msg, err := domain.Decode(payload)
	if err != nil {
		s.metrics.DecodeErrors.Inc()
		s.log.Warn("Dropping undecodable frame", "conn_id", conn.ID(), "error", err)
		return err
	}

	msg = s.moderate(msg)

	if _, err = s.router.HandleMessage(ctx, conn, msg); err != nil {
		return fmt.Errorf("routing message for room %d: %w", msg.RoomID, err)
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, contract.BusMessage{Origin: s.instanceID, Message: msg}); err != nil {
			s.log.Warn("Failed to publish message on bus", "room_id", msg.RoomID, "error", err)
		} else {
			s.metrics.BusMessages.WithLabelValues("published").Inc()
		}
	}
	return nil
}

func (s *RelayService) moderate(msg domain.ChatMessage) domain.ChatMessage {
	if s.censor == nil || msg.MessageType != domain.Talk {
		return msg
	}
	for _, field := range moderatedFields {
		text, ok := msg.Text(field)
		if !ok {
			continue
		}
		censored, words := s.censor.Censor(text)
		if len(words) == 0 {
			continue
		}
		s.metrics.CensoredWords.Add(float64(len(words)))
		s.log.Info("Message censored", "sender_id", msg.SenderID, "room_id", msg.RoomID, "words", len(words))
		msg = msg.WithText(field, censored)
	}
	return msg
}
