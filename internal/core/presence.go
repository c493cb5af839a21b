package core

import "sort"

// Presence indexes announced sessions by user id and back. A user stays
// online while at least one of their sessions is announced. Not safe for
// concurrent use; the hub goroutine owns it.
type Presence struct {
	byUser   map[string]map[*Client]struct{}
	byClient map[*Client]string
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser:   make(map[string]map[*Client]struct{}),
		byClient: make(map[*Client]string),
	}
}

// Announce binds the session to userID. A session announcing a different
// identity is moved.
func (p *Presence) Announce(c *Client, userID string) {
	if prev, ok := p.byClient[c]; ok {
		if prev == userID {
			return
		}
		p.Withdraw(c)
	}
	sessions, ok := p.byUser[userID]
	if !ok {
		sessions = make(map[*Client]struct{})
		p.byUser[userID] = sessions
	}
	sessions[c] = struct{}{}
	p.byClient[c] = userID
}

// Withdraw removes the session. Returns the user it was bound to, or false
// if the session was never announced.
func (p *Presence) Withdraw(c *Client) (string, bool) {
	userID, ok := p.byClient[c]
	if !ok {
		return "", false
	}
	delete(p.byClient, c)
	if sessions := p.byUser[userID]; sessions != nil {
		delete(sessions, c)
		if len(sessions) == 0 {
			delete(p.byUser, userID)
		}
	}
	return userID, true
}

// Sessions returns every live session of the user.
func (p *Presence) Sessions(userID string) []*Client {
	sessions := p.byUser[userID]
	out := make([]*Client, 0, len(sessions))
	for c := range sessions {
		out = append(out, c)
	}
	return out
}

// Online reports whether the user has at least one session.
func (p *Presence) Online(userID string) bool {
	return len(p.byUser[userID]) > 0
}

// Snapshot returns the sorted distinct online user ids.
func (p *Presence) Snapshot() []string {
	users := make([]string, 0, len(p.byUser))
	for id := range p.byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
