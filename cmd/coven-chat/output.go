// ABOUTME: Terminal rendering of messages, conversations and status lines
// ABOUTME: Colors sender names and shows relative times via go-humanize

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/messages"
)

var (
	selfColor   = color.New(color.FgGreen, color.Bold)
	senderColor = color.New(color.FgCyan, color.Bold)
	timeColor   = color.New(color.FgHiBlack)
	noticeColor = color.New(color.FgYellow)
	errorColor  = color.New(color.FgRed)
)

func senderLabel(m messages.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderID
}

// printMessage writes one message line. Messages older than a day also show
// their date.
func printMessage(w io.Writer, m messages.Message, selfID string, now time.Time) {
	ts := m.Timestamp.Local()
	layout := "15:04"
	if now.Sub(m.Timestamp) > 24*time.Hour {
		layout = "Jan 2 15:04"
	}

	name := senderColor
	if m.SenderID == selfID {
		name = selfColor
	}

	timeColor.Fprintf(w, "%s ", ts.Format(layout))
	name.Fprint(w, senderLabel(m))
	fmt.Fprintf(w, ": %s\n", indentContinuation(m.Content))
}

// indentContinuation keeps multi-line messages visually attached to their sender.
func indentContinuation(s string) string {
	return strings.ReplaceAll(s, "\n", "\n      ")
}

func printNotice(w io.Writer, format string, args ...any) {
	noticeColor.Fprintf(w, "*** "+format+"\n", args...)
}

func printConversation(w io.Writer, c api.Conversation, selfID string, now time.Time) {
	kind := "dm   "
	if c.IsGroup {
		kind = "group"
	}

	online := 0
	for _, p := range c.Participants {
		if p.ID != selfID && p.IsOnline {
			online++
		}
	}

	timeColor.Fprintf(w, "%s  %s  ", c.ID, kind)
	senderColor.Fprint(w, c.Title(selfID))
	if online > 0 {
		selfColor.Fprintf(w, "  %d online", online)
	}
	fmt.Fprintln(w)

	if c.LastMessage != nil {
		preview := strings.ReplaceAll(c.LastMessage.Content, "\n", " ")
		if len([]rune(preview)) > 60 {
			preview = string([]rune(preview)[:59]) + "…"
		}
		timeColor.Fprintf(w, "    %s, %s: ", humanize.RelTime(c.LastMessage.Timestamp, now, "ago", "from now"), senderLabel(*c.LastMessage))
		fmt.Fprintln(w, preview)
	}
}
