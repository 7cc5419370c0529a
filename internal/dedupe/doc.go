// Package dedupe provides the exact seen-id set that keeps a conversation's
// message log free of duplicates, whichever path (history load or push
// delivery) an id arrives on first.
package dedupe
