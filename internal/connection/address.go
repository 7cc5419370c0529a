// ABOUTME: Derives the per-user channel address from the API's HTTP(S) origin.
// ABOUTME: http maps to ws, https maps to wss, path gains /ws/<user id>.

package connection

import (
	"fmt"
	"net/url"
	"strings"
)

// ChannelURL returns the websocket address for userID given the API base URL,
// e.g. https://chat.example.com -> wss://chat.example.com/ws/<userID>.
// Any path on the base URL is kept; query and fragment are dropped.
func ChannelURL(baseURL, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidIdentity)
	}

	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidBaseURL, baseURL)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBaseURL, u.Scheme)
	}

	u.RawQuery = ""
	u.Fragment = ""
	return u.JoinPath("ws", url.PathEscape(userID)).String(), nil
}
