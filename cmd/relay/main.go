package main

import (
	"chat-relay/contract"
	"chat-relay/infrastructure/bus"
	grpcserver "chat-relay/infrastructure/grpc/server"
	httpserver "chat-relay/infrastructure/http/server"
	"chat-relay/infrastructure/websocket"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until a signal arrives and shuts down in reverse order.
// Only configuration and listener errors end the process.
func run() error {
	// 1. Configuration & Logger
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	instanceID := uuid.NewString()

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Optional moderation
	censor, err := buildCensor(log, config)
	if err != nil {
		return err
	}

	// 4. Optional bus shared with other instances
	group := config.KafkaGroup
	if group == "" {
		// One group per instance so that every relay reads every message
		group = "chat-relay-" + instanceID
	}
	messageBus, err := bus.New(ctx, log, bus.Config{
		Driver:       strings.ToLower(config.BusDriver),
		RedisAddr:    config.RedisAddr,
		RedisDB:      config.RedisDB,
		RedisPrefix:  "chat-relay",
		KafkaBrokers: config.Brokers(),
		KafkaTopic:   config.KafkaTopic,
		KafkaGroup:   group,
	})
	if err != nil {
		return fmt.Errorf("bus error: %w", err)
	}
	defer func() {
		log.Info("Closing bus...")
		_ = messageBus.Close()
	}()
	var shared contract.MessageBus
	if _, alone := messageBus.(bus.Noop); !alone {
		shared = messageBus
	}

	// 5. Core state & supervision
	metrics := observability.NewMetrics()
	registry := runtime.NewConnectionRegistry(log)
	router := runtime.NewRouter(log, metrics, config.FanoutParallelism)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, sup, registry, router, metrics,
		shared, instanceID, config.MetricInterval)

	if config.GrpcPort > 0 {
		address := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
		orchestrator.Add(grpcserver.NewHealthServer(log, address))
	}
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	// 6. HTTP & WebSocket
	relayService := services.NewRelayService(log, registry, router, metrics, censor, shared, instanceID)
	routes := httpserver.NewRoutes(log, relayService, registry, router, metrics, websocket.Config{
		BufferSize:     config.ConnectionBufferSize,
		MaxMessageSize: config.MaxMessageSize,
		WriteTimeout:   config.WriteTimeout,
		PongTimeout:    config.PongTimeout,
	})

	listener, err := net.Listen("tcp", config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Address(), err)
	}

	server := httpserver.NewServer(log, config.Address(), routes.Handler(), config.ShutdownTimeout)
	log.Info("Relay ready", "instance", instanceID, "address", config.Address(), "bus", config.BusDriver)
	if err = server.Serve(ctx, listener); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}

func buildCensor(log *slog.Logger, config Config) (contract.Censor, error) {
	if !config.ModerationEnabled {
		return nil, nil
	}
	char, err := CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	dictionary, err := moderation.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(dictionary.Languages), strings.Join(dictionary.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(dictionary.Words)))

	return moderation.NewModerator(dictionary.Words, char, log)
}
