// Package session describes who the realtime channel belongs to.
//
// The server issues HS256 bearer tokens whose "sub" claim is the username;
// the client cannot verify the signature, but it can read the claims to
// reject an expired session before dialing. The channel itself is addressed
// by the user's id, which the caller learns from the profile endpoint and
// carries in an Identity.
package session
