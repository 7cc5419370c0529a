// ABOUTME: Tests for the interactive chat session against an httptest chat server.
// ABOUTME: Covers posting typed lines, printing once, reload after a drop and slash commands.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/messages"
	"github.com/2389/coven-chat/internal/session"
)

var chatMe = session.Identity{UserID: "u-1", Username: "ada"}

// fakeChatServer serves one conversation. Its websocket endpoint only
// pushes; frames written by clients are discarded.
type fakeChatServer struct {
	srv    *httptest.Server
	loads  atomic.Int32
	posted atomic.Int32

	mu      sync.Mutex
	history []messages.Message
	conns   map[*websocket.Conn]struct{}
}

func newFakeChatServer(t *testing.T, history ...messages.Message) *fakeChatServer {
	t.Helper()
	fs := &fakeChatServer{
		history: history,
		conns:   make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []api.Conversation{{
			ID: "c-1",
			Participants: []api.User{
				{ID: "u-1", Username: "ada", DisplayName: "Ada"},
				{ID: "u-2", Username: "grace", DisplayName: "Grace"},
			},
		}})
	})
	mux.HandleFunc("GET /api/conversations/c-1/messages", func(w http.ResponseWriter, r *http.Request) {
		fs.loads.Add(1)
		fs.mu.Lock()
		out := append([]messages.Message(nil), fs.history...)
		fs.mu.Unlock()
		writeJSON(w, out)
	})
	mux.HandleFunc("POST /api/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ConversationID string `json:"conversation_id"`
			Content        string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := fs.posted.Add(1)
		m := chatMessage(fmt.Sprintf("p-%d", n), chatMe.UserID, body.Content, 30+int(n))
		m.ConversationID = body.ConversationID
		fs.mu.Lock()
		fs.history = append(fs.history, m)
		fs.mu.Unlock()
		fs.push(r.Context(), m)
		writeJSON(w, m)
	})
	mux.HandleFunc("/ws/"+chatMe.UserID, func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		fs.mu.Lock()
		fs.conns[c] = struct{}{}
		fs.mu.Unlock()
		defer func() {
			fs.mu.Lock()
			delete(fs.conns, c)
			fs.mu.Unlock()
		}()

		for {
			if _, _, err := c.Read(r.Context()); err != nil {
				return
			}
		}
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (fs *fakeChatServer) push(ctx context.Context, m messages.Message) {
	data, err := json.Marshal(map[string]any{"type": "new_message", "message": m})
	if err != nil {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for c := range fs.conns {
		_ = c.Write(ctx, websocket.MessageText, data)
	}
}

// addOffline stores a message without pushing it.
func (fs *fakeChatServer) addOffline(m messages.Message) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.history = append(fs.history, m)
}

// drop kills every open socket.
func (fs *fakeChatServer) drop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for c := range fs.conns {
		c.CloseNow()
	}
}

func (fs *fakeChatServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

func (fs *fakeChatServer) app() *app {
	cfg := &config.Config{}
	cfg.Server.BaseURL = fs.srv.URL
	cfg.Realtime.MaxAttempts = 5
	cfg.Realtime.BaseDelay = 20 * time.Millisecond
	cfg.Realtime.DialTimeout = 2 * time.Second
	cfg.Realtime.WriteTimeout = 2 * time.Second
	cfg.Realtime.ReadLimit = config.DefaultReadLimit
	cfg.History.Limit = config.DefaultHistoryLimit
	return &app{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		client: api.New(fs.srv.URL, "tok"),
	}
}

func chatMessage(id, senderID, content string, minute int) messages.Message {
	return messages.Message{
		ID:             id,
		ConversationID: "c-1",
		SenderID:       senderID,
		SenderName:     "grace",
		Content:        content,
		Timestamp:      time.Date(2026, 3, 1, 12, minute, 0, 0, time.UTC),
		Type:           messages.DefaultType,
	}
}

// syncBuffer is an io.Writer safe for the printer and notice writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) count(s string) int {
	return strings.Count(b.String(), s)
}

// startChat runs a session reading from the returned pipe writer.
func startChat(t *testing.T, fs *fakeChatServer) (*chatSession, *syncBuffer, *io.PipeWriter, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	s := newChatSession(fs.app(), chatMe, "c-1", out)
	done := make(chan error, 1)
	go func() { done <- s.run(t.Context(), pr) }()
	return s, out, pw, done
}

func quit(t *testing.T, s *chatSession, pw *io.PipeWriter, done <-chan error) {
	t.Helper()
	_, err := fmt.Fprintln(pw, "/quit")
	require.NoError(t, err)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not quit")
	}
	s.close()
}

func TestChatSession_TypedLinePostedAndPrintedOnce(t *testing.T) {
	fs := newFakeChatServer(t, chatMessage("h-1", "u-2", "hello from grace", 1))
	s, out, pw, done := startChat(t, fs)

	require.Eventually(t, func() bool {
		return out.count("*** connected") == 1 && out.count("hello from grace") == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "joining Grace as ada(u-1)")

	_, err := fmt.Fprintln(pw, "hi there")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return out.count("hi there") == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), fs.posted.Load())

	// A reload replays everything as a Loaded update; nothing is printed twice.
	_, err = fmt.Fprintln(pw, "/reload")
	require.NoError(t, err)
	quit(t, s, pw, done)

	assert.Equal(t, int32(2), fs.loads.Load())
	assert.Equal(t, 1, out.count("hello from grace"))
	assert.Equal(t, 1, out.count("hi there"))
	assert.NotContains(t, out.String(), "not connected")
}

func TestChatSession_ReloadsHistoryAfterDrop(t *testing.T) {
	fs := newFakeChatServer(t, chatMessage("h-1", "u-2", "hello from grace", 1))
	s, out, pw, done := startChat(t, fs)

	require.Eventually(t, func() bool {
		return fs.connCount() == 1 && fs.loads.Load() == 1 && out.count("hello from grace") == 1
	}, 5*time.Second, 5*time.Millisecond)

	fs.addOffline(chatMessage("h-2", "u-2", "sent while you were away", 2))
	fs.drop()

	require.Eventually(t, func() bool {
		return out.count("sent while you were away") == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "*** connection lost, reconnecting")
	assert.Equal(t, 2, out.count("*** connected"))
	assert.GreaterOrEqual(t, fs.loads.Load(), int32(2))

	quit(t, s, pw, done)
	assert.Equal(t, 1, out.count("hello from grace"))
	assert.Equal(t, 1, out.count("sent while you were away"))
}

func TestChatSession_HandleLine(t *testing.T) {
	fs := newFakeChatServer(t)
	out := &syncBuffer{}
	s := newChatSession(fs.app(), chatMe, "c-1", out)
	defer s.close()

	tests := []struct {
		line     string
		wantQuit bool
		want     string
	}{
		{"hello", false, "*** not connected, message not sent"},
		{strings.Repeat("x", 1001), false, "*** message content too long: 1001 > 1000 characters"},
		{"/frobnicate now", false, "*** unknown command /frobnicate (try /help)"},
		{"/who", false, "*** nobody else is online"},
		{"/help", false, "/reload   reload history from the server"},
		{"   ", false, ""},
		{"/quit", true, ""},
		{"/exit", true, ""},
	}

	for _, tt := range tests {
		t.Run(strings.Fields(tt.line + " blank")[0], func(t *testing.T) {
			before := out.String()
			assert.Equal(t, tt.wantQuit, s.handleLine(t.Context(), tt.line))
			printed := strings.TrimPrefix(out.String(), before)
			if tt.want == "" {
				assert.Empty(t, printed)
				return
			}
			assert.Contains(t, printed, tt.want)
		})
	}
	assert.Zero(t, fs.posted.Load())
}
