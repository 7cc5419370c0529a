// ABOUTME: Typed REST operations: auth, users, conversations, messages and groups.
// ABOUTME: History results are validated so only well-formed messages reach the store.

package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389/coven-chat/internal/messages"
)

// User is a user profile as returned by the server.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}

// Conversation is a direct or group conversation.
type Conversation struct {
	ID           string            `json:"id"`
	Participants []User            `json:"participants"`
	IsGroup      bool              `json:"is_group"`
	GroupName    string            `json:"group_name,omitempty"`
	LastMessage  *messages.Message `json:"last_message,omitempty"`
}

// Title is the group name, or the other participants' names for a direct
// conversation.
func (c Conversation) Title(selfID string) string {
	if c.IsGroup && c.GroupName != "" {
		return c.GroupName
	}
	title := ""
	for _, p := range c.Participants {
		if p.ID == selfID {
			continue
		}
		name := p.DisplayName
		if name == "" {
			name = p.Username
		}
		if title != "" {
			title += ", "
		}
		title += name
	}
	if title == "" {
		return c.ID
	}
	return title
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Login exchanges credentials for an access token. The returned token is
// not installed on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SearchUsers finds other users by username or display name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users/search", url.Values{"query": {query}}, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListConversations returns the signed-in user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ListMessages returns up to limit recent messages of a conversation.
// Entries that fail validation are skipped and logged.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]messages.Message, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var raw []messages.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}

	out := raw[:0]
	for _, m := range raw {
		if err := m.Validate(); err != nil {
			slog.Debug("skipping invalid history entry",
				"conversation_id", conversationID,
				"message_id", m.ID,
				"error", err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// SendMessage posts a message through the REST API rather than the push
// channel. The server pushes it to every participant, including the sender.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (messages.Message, error) {
	body := map[string]string{"conversation_id": conversationID, "content": content}
	var m messages.Message
	if err := c.do(ctx, http.MethodPost, "/messages", nil, body, &m); err != nil {
		return messages.Message{}, err
	}
	return m, nil
}

// CreateConversation starts a conversation, or returns the existing direct
// conversation with the same participants.
func (c *Client) CreateConversation(ctx context.Context, participantIDs []string, isGroup bool, groupName string) (*Conversation, error) {
	body := struct {
		ParticipantIDs []string `json:"participant_ids"`
		IsGroup        bool     `json:"is_group"`
		GroupName      string   `json:"group_name,omitempty"`
	}{participantIDs, isGroup, groupName}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateGroup creates a named group conversation including the caller.
func (c *Client) CreateGroup(ctx context.Context, name, description string, participantIDs []string) (*Conversation, error) {
	body := struct {
		Name           string   `json:"name"`
		Description    string   `json:"description,omitempty"`
		ParticipantIDs []string `json:"participant_ids"`
	}{name, description, participantIDs}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/groups", nil, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddParticipants adds users to a group the caller belongs to.
func (c *Client) AddParticipants(ctx context.Context, groupID string, participantIDs []string) error {
	path := "/groups/" + url.PathEscape(groupID) + "/participants"
	return c.do(ctx, http.MethodPut, path, nil, participantIDs, nil)
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
}
