// ABOUTME: Interactive chat subcommand driving the realtime client
// ABOUTME: Prints history and live messages, submits typed lines, handles slash commands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/connection"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/dispatch"
	"github.com/2389/coven-chat/internal/realtime"
	"github.com/2389/coven-chat/internal/session"
)

const chatHelp = `/reload   reload history from the server
/who      show who is online
/connect  reconnect after the client gave up
/quit     leave`

type chatSession struct {
	app            *app
	client         *realtime.Client
	me             session.Identity
	conversationID string
	names          map[string]string // participant id -> display name
	title          string

	outMu sync.Mutex
	out   io.Writer

	// printed is owned by the update printer goroutine.
	printed     *dedupe.Set
	printing    bool
	printerDone chan struct{}

	wasOffline bool
}

func runChat(ctx context.Context, args []string) error {
	flags, configPath := newFlagSet("chat")
	rest, err := requireArgs(flags, args, 1, "chat <conversation-id>")
	if err != nil {
		return err
	}

	a, err := loadApp(*configPath)
	if err != nil {
		return err
	}
	me, err := a.identity(ctx)
	if err != nil {
		return err
	}

	serveMetrics(ctx, a.cfg.Metrics, a.logger)

	s := newChatSession(a, me, rest[0], os.Stdout)
	err = s.run(ctx, os.Stdin)
	s.close()
	return err
}

// newChatSession builds the realtime client for conversationID. Call close
// when done.
func newChatSession(a *app, me session.Identity, conversationID string, out io.Writer) *chatSession {
	client := realtime.New(connection.Config{
		BaseURL:      a.cfg.Server.BaseURL,
		MaxAttempts:  a.cfg.Realtime.MaxAttempts,
		BaseDelay:    a.cfg.Realtime.BaseDelay,
		DialTimeout:  a.cfg.Realtime.DialTimeout,
		WriteTimeout: a.cfg.Realtime.WriteTimeout,
		Dialer:       &connection.WebSocketDialer{ReadLimit: a.cfg.Realtime.ReadLimit},
		Logger:       a.logger,
	}, a.client)

	return &chatSession{
		app:            a,
		client:         client,
		me:             me,
		conversationID: conversationID,
		names:          make(map[string]string),
		title:          conversationID,
		out:            out,
		printed:        dedupe.NewSet(a.cfg.History.Limit),
		printerDone:    make(chan struct{}),
	}
}

// close shuts the client down and waits for the printer to drain.
func (s *chatSession) close() {
	s.client.Close()
	if s.printing {
		<-s.printerDone
	}
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	s.resolveParticipants(ctx)

	updates := s.client.Subscribe(ctx, s.conversationID)
	s.printing = true
	go s.printUpdates(updates)

	unsubscribe := s.client.OnConnectivity(s.connectivityChanged)
	defer unsubscribe()
	s.client.Presence().OnChange(s.presenceChanged)

	s.notice("joining %s as %s", s.title, s.me)

	// Connect before loading history so nothing pushed in between is missed;
	// the store reconciles the overlap.
	if err := s.client.Connect(s.me); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	s.reload(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (s *chatSession) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	switch line {
	case "/quit", "/exit":
		return true
	case "/reload":
		s.reload(ctx)
		return false
	case "/who":
		s.who()
		return false
	case "/connect":
		if err := s.client.Connect(s.me); err != nil {
			s.errorf("connect: %v", err)
		}
		return false
	case "/help":
		s.print(func(w io.Writer) { fmt.Fprintln(w, chatHelp) })
		return false
	}
	if strings.HasPrefix(line, "/") {
		s.notice("unknown command %s (try /help)", strings.Fields(line)[0])
		return false
	}

	_, err := s.client.Submit(ctx, s.conversationID, line)
	switch {
	case err == nil:
		// Submit merged the stored message; the printer shows it.
	case errors.Is(err, connection.ErrNotConnected):
		s.notice("not connected, message not sent")
	case errors.Is(err, dispatch.ErrContentTooLong), errors.Is(err, dispatch.ErrEmptyContent):
		s.notice("%v", err)
	default:
		s.errorf("send failed: %v", err)
	}
	return false
}

// reload fetches history and replaces the conversation's messages.
func (s *chatSession) reload(ctx context.Context) {
	history, err := s.app.client.ListMessages(ctx, s.conversationID, s.app.cfg.History.Limit)
	if err != nil {
		s.errorf("loading history: %v", err)
		return
	}
	s.client.Load(s.conversationID, history)
}

// printUpdates prints each message once, whether it arrived through a
// history load or a push.
func (s *chatSession) printUpdates(updates <-chan conversation.Update) {
	defer close(s.printerDone)

	for u := range updates {
		switch u.Kind {
		case conversation.Loaded:
			for m := range s.client.Snapshot(s.conversationID) {
				if !s.printed.CheckAndMark(m.ID) {
					s.print(func(w io.Writer) { printMessage(w, m, s.me.UserID, time.Now()) })
				}
			}
		case conversation.Appended:
			m := u.Message
			if !s.printed.CheckAndMark(m.ID) {
				s.print(func(w io.Writer) { printMessage(w, m, s.me.UserID, time.Now()) })
			}
		}
	}
}

// connectivityChanged runs on the connection loop; it must not block.
func (s *chatSession) connectivityChanged(connected bool) {
	if connected {
		s.notice("connected")
		if s.wasOffline {
			// Catch up on anything pushed while offline.
			go s.reload(context.Background())
		}
		s.wasOffline = false
		return
	}

	s.wasOffline = true
	if errors.Is(s.client.Err(), connection.ErrReconnectionExhausted) {
		s.errorf("gave up reconnecting; type /connect to try again")
		return
	}
	s.notice("connection lost, reconnecting")
}

func (s *chatSession) presenceChanged(userID string, online bool) {
	name, ok := s.names[userID]
	if !ok || userID == s.me.UserID {
		return
	}
	if online {
		s.notice("%s is online", name)
	} else {
		s.notice("%s went offline", name)
	}
}

func (s *chatSession) who() {
	var online []string
	for _, id := range s.client.Presence().OnlineUsers() {
		if name, ok := s.names[id]; ok && id != s.me.UserID {
			online = append(online, name)
		}
	}
	slices.Sort(online)
	if len(online) == 0 {
		s.notice("nobody else is online")
		return
	}
	s.notice("online: %s", strings.Join(online, ", "))
}

// resolveParticipants fills names from the conversation list. Failures only
// degrade presence output.
func (s *chatSession) resolveParticipants(ctx context.Context) {
	convs, err := s.app.client.ListConversations(ctx)
	if err != nil {
		s.app.logger.Warn("could not load participants", "error", err)
		return
	}
	for _, c := range convs {
		if c.ID != s.conversationID {
			continue
		}
		for _, p := range c.Participants {
			name := p.DisplayName
			if name == "" {
				name = p.Username
			}
			s.names[p.ID] = name
			// Seed presence from the profile's last known status.
			s.client.Presence().SetOnline(p.ID, p.IsOnline)
		}
		s.title = c.Title(s.me.UserID)
		return
	}
}

func (s *chatSession) print(fn func(w io.Writer)) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fn(s.out)
}

func (s *chatSession) notice(format string, args ...any) {
	s.print(func(w io.Writer) { printNotice(w, format, args...) })
}

func (s *chatSession) errorf(format string, args ...any) {
	s.print(func(w io.Writer) { errorColor.Fprintf(w, "!!! "+format+"\n", args...) })
}
