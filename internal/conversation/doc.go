// Package conversation fans message store changes out to views.
//
// A view subscribes to one conversation, or to AllConversations, and
// receives Update values on a buffered channel:
//
//	ch, _ := b.Subscribe(ctx, "c-1")
//	for u := range ch {
//		switch u.Kind {
//		case conversation.Loaded:   // re-read the snapshot
//		case conversation.Appended: // u.Message is new
//		}
//	}
//
// Publishing never blocks. A subscriber that falls behind loses updates
// rather than stalling the channel; a Loaded update or a fresh snapshot
// brings it back in step.
package conversation
