// Package router decodes inbound channel frames into a closed set of typed
// variants and hands them to the component that owns each kind.
//
// Recognized envelopes:
//
//	{"type": "new_message",  "message": {...}}  -> NewMessage, merged into the store
//	{"type": "user_online",  "user_id": "..."}  -> UserOnline, forwarded to presence
//	{"type": "user_offline", "user_id": "..."}  -> UserOffline, forwarded to presence
//
// Anything else, including a known type whose payload has the wrong shape,
// classifies as Unrecognized and is dropped after a debug log. Classification
// never fails and never touches connection state.
package router
