package runtime

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_Connect_Disconnect(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(logs.GetLoggerFromLevel(slog.LevelDebug))
	conn := newFakeConn(uuid.NewString())

	// Given no connection is open
	req.Zero(registry.Len())

	// When a connection opens
	registry.Connect(conn)

	// Then it is registered
	req.Equal(1, registry.Len())
	req.True(registry.Contains(conn.ID()))

	// When it closes
	removed := registry.Disconnect(conn, "normal closure")

	// Then the registry is empty again
	req.True(removed)
	req.Zero(registry.Len())
	req.False(registry.Contains(conn.ID()))
}

func TestConnectionRegistry_Disconnect_Twice(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	conn := newFakeConn(uuid.NewString())

	registry.Connect(conn)
	req.True(registry.Disconnect(conn, "going away"))

	// When the transport reports the same close again
	// Then the inconsistency is reported without failing
	req.False(registry.Disconnect(conn, "going away"))
	req.Zero(registry.Len())
}

func TestConnectionRegistry_Disconnect_Unknown(t *testing.T) {
	registry := NewConnectionRegistry(slog.Default())
	require.False(t, registry.Disconnect(newFakeConn("never-opened"), "abnormal closure"))
}

func TestConnectionRegistry_Connect_SameConnectionTwice(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	conn := newFakeConn(uuid.NewString())

	registry.Connect(conn)
	registry.Connect(conn)

	req.Equal(1, registry.Len())
	req.ElementsMatch([]string{conn.ID()}, registry.Snapshot())
}

// Any sequence of opens and closes leaves exactly the open-but-not-closed connections.
func TestConnectionRegistry_RandomSequences(t *testing.T) {
	req := require.New(t)
	rnd := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		registry := NewConnectionRegistry(slog.Default())
		open := make(map[string]*fakeConn)
		pool := make([]*fakeConn, 10)
		for i := range pool {
			pool[i] = newFakeConn(fmt.Sprintf("conn-%d", i))
		}

		for step := 0; step < 100; step++ {
			conn := pool[rnd.Intn(len(pool))]
			if rnd.Intn(2) == 0 {
				registry.Connect(conn)
				open[conn.ID()] = conn
			} else {
				_, wasOpen := open[conn.ID()]
				req.Equal(wasOpen, registry.Disconnect(conn, "random"))
				delete(open, conn.ID())
			}
		}

		expected := make([]string, 0, len(open))
		for id := range open {
			expected = append(expected, id)
		}
		req.ElementsMatch(expected, registry.Snapshot(), "round=%d", round)
	}
}

func TestConnectionRegistry_Concurrent(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry(slog.Default())
	conns := make([]*fakeConn, 100)
	for i := range conns {
		conns[i] = newFakeConn(uuid.NewString())
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Connect(conn)
			if i%2 == 0 {
				registry.Disconnect(conn, "concurrent")
			}
		}()
	}
	wg.Wait()

	req.Equal(len(conns)/2, registry.Len())
}
