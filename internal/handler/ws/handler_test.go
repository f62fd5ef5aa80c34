package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voralis/skycast/backend/internal/config"
	chatservice "github.com/voralis/skycast/backend/internal/service/chat"
	"github.com/voralis/skycast/backend/internal/service/dialogue"
	"github.com/voralis/skycast/backend/internal/tools"
)

type cannedModel struct {
	parts []string
}

func (m *cannedModel) Stream(_ context.Context, _ []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	chunks := make([]*schema.Message, 0, len(m.parts))
	for _, part := range m.parts {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, Content: part})
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// frame mirrors outgoingMessage with raw data so tests can decode the
// payload per frame type.
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func newTestServer(t *testing.T, parts ...string) (*httptest.Server, *chatservice.Service) {
	t.Helper()

	chatSvc := chatservice.NewService()
	engine := dialogue.NewEngine(chatSvc, &cannedModel{parts: parts}, tools.NewRegistry(), config.DialogueConfig{
		MaxToolRounds: 4,
		TurnTimeout:   5 * time.Second,
	})

	router := chi.NewRouter()
	New(engine, chatSvc).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, chatSvc
}

func dialSession(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON err: %v", err)
	}
	return f
}

func sendUserMessage(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()

	payload := map[string]any{
		"type": "user_message",
		"data": map[string]string{"text": text},
	}
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}
}

func TestWebSocketDeliversDeltasAndFullMessage(t *testing.T) {
	server, chatSvc := newTestServer(t, "Sunny ", "with a chance ", "of rain.")
	conn := dialSession(t, server, "s1")

	if f := readFrame(t, conn); f.Type != "connected" {
		t.Fatalf("expected connected frame, got %q", f.Type)
	}

	sendUserMessage(t, conn, "weather?")

	var deltas strings.Builder
	var full string
	for {
		f := readFrame(t, conn)
		var text TextMessage
		if err := json.Unmarshal(f.Data, &text); err != nil {
			t.Fatalf("unmarshal %s data: %v", f.Type, err)
		}

		switch f.Type {
		case "delta":
			deltas.WriteString(text.Text)
			continue
		case "message":
			full = text.Text
		default:
			t.Fatalf("unexpected frame type %q", f.Type)
		}
		break
	}

	if deltas.String() != "Sunny with a chance of rain." {
		t.Fatalf("unexpected deltas: %q", deltas.String())
	}
	if full != deltas.String() {
		t.Fatalf("message frame %q differs from deltas %q", full, deltas.String())
	}

	transcript, err := chatSvc.LoadTranscript(context.Background(), "s1")
	if err != nil {
		t.Fatalf("LoadTranscript err: %v", err)
	}
	if len(transcript) != 2 || transcript[1].Content != full {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestWebSocketRejectsBusySession(t *testing.T) {
	server, chatSvc := newTestServer(t, "hi")

	ctx := context.Background()
	if _, err := chatSvc.GetOrCreateSession(ctx, "s1"); err != nil {
		t.Fatalf("GetOrCreateSession err: %v", err)
	}
	if err := chatSvc.BeginTurn("s1"); err != nil {
		t.Fatalf("BeginTurn err: %v", err)
	}
	defer chatSvc.EndTurn("s1")

	conn := dialSession(t, server, "s1")
	if f := readFrame(t, conn); f.Type != "connected" {
		t.Fatalf("expected connected frame, got %q", f.Type)
	}

	sendUserMessage(t, conn, "weather?")

	f := readFrame(t, conn)
	if f.Type != "error" {
		t.Fatalf("expected error frame, got %q", f.Type)
	}
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if data["message"] != "session busy" {
		t.Fatalf("unexpected error message: %q", data["message"])
	}
}

func TestWebSocketRejectsMalformedUserMessage(t *testing.T) {
	server, _ := newTestServer(t, "hi")
	conn := dialSession(t, server, "s1")

	if f := readFrame(t, conn); f.Type != "connected" {
		t.Fatalf("expected connected frame, got %q", f.Type)
	}

	if err := conn.WriteJSON(map[string]any{"type": "user_message", "data": map[string]string{}}); err != nil {
		t.Fatalf("WriteJSON err: %v", err)
	}

	if f := readFrame(t, conn); f.Type != "error" {
		t.Fatalf("expected error frame, got %q", f.Type)
	}
}
