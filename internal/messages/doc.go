// Package messages holds the chat Message value and the per-conversation
// message store that reconciles push-delivered messages with history
// fetched over request/response.
//
// # Reconciliation
//
// History and live updates arrive on independent paths:
//
//   - Load(conversationID, msgs) replaces a conversation's log wholesale.
//     Entries are sorted by timestamp ascending, ties broken by id.
//   - Merge(msg) appends a single pushed message at the tail unless its id
//     was already seen for that conversation.
//
// Each log keeps a seen-id set, so the two paths compose safely whatever
// the arrival order and however often an id is redelivered.
//
// # Snapshots
//
// Snapshot returns an iter.Seq over the log as it was at call time. The
// sequence is lazy and can be ranged over any number of times; callers never
// receive the store's internal slice.
//
//	for msg := range store.Snapshot("conv-1") {
//		fmt.Println(msg.SenderName, msg.Content)
//	}
package messages
