package core

import "time"

type typingKey struct {
	client *Client
	chatID string
}

// typingTracker remembers who is typing where so stale indicators can be
// cleared. A zero ttl turns it off entirely: typing is relayed only, and a
// disconnect mid-typing leaves peers to notice the presence change.
type typingTracker struct {
	ttl       time.Duration
	deadlines map[typingKey]time.Time
}

func newTypingTracker(ttl time.Duration) *typingTracker {
	return &typingTracker{ttl: ttl, deadlines: make(map[typingKey]time.Time)}
}

func (t *typingTracker) start(c *Client, chatID string, now time.Time) {
	if t.ttl <= 0 {
		return
	}
	t.deadlines[typingKey{c, chatID}] = now.Add(t.ttl)
}

func (t *typingTracker) stop(c *Client, chatID string) {
	delete(t.deadlines, typingKey{c, chatID})
}

// expired removes and returns the entries past their deadline.
func (t *typingTracker) expired(now time.Time) []typingKey {
	if t.ttl <= 0 {
		return nil
	}
	var out []typingKey
	for key, deadline := range t.deadlines {
		if !now.Before(deadline) {
			out = append(out, key)
			delete(t.deadlines, key)
		}
	}
	return out
}

// drop forgets the client and returns the chats it was still typing in.
func (t *typingTracker) drop(c *Client) []string {
	var chats []string
	for key := range t.deadlines {
		if key.client == c {
			chats = append(chats, key.chatID)
			delete(t.deadlines, key)
		}
	}
	return chats
}
