package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL not set, no relay to test against")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Dial opens a WebSocket on the relay endpoint, closed at the end of the test.
func (s *BaseRelaySuite) Dial(name string) *websocket.Conn {
	t := s.T()
	s.header(t, name)
	url := "ws" + strings.TrimPrefix(strings.TrimRight(s.Config.RelayURL, "/"), "http") + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+url)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (s *BaseRelaySuite) Send(ws *websocket.Conn, payload string) {
	s.T().Logf("SEND %s", payload)
	s.Require().NoError(ws.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (s *BaseRelaySuite) Receive(ws *websocket.Conn) map[string]any {
	s.Require().NoError(ws.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, data, err := ws.ReadMessage()
	s.Require().NoError(err)
	s.T().Logf("RECV %s", data)
	var out map[string]any
	s.Require().NoError(json.Unmarshal(data, &out))
	return out
}

// GrpcConn initializes a gRPC connection logging every unary call
func (s *BaseRelaySuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.header(t, name)
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			t.Logf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}
