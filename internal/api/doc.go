// Package api is a client for the chat server's REST API.
//
// The realtime channel only pushes what happens after it opens; history,
// conversation lists and group management come from here:
//
//	c := api.New("https://chat.example.com", token)
//	history, err := c.ListMessages(ctx, convID, 50)
//
// Every non-2xx response is a *StatusError. Match common cases with
// errors.Is(err, api.ErrUnauthorized), api.ErrForbidden or api.ErrNotFound.
package api
