package core

import "sort"

// Room groups clients subscribed to the same chat.
type Room struct {
	ChatID  string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(chatID string) *Room {
	return &Room{
		ChatID:  chatID,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to every client in the room except the given one.
// Slow consumers miss the event. Returns the number of deliveries.
func (r *Room) Broadcast(event *Event, except *Client) int {
	delivered := 0
	for client := range r.clients {
		if client == except {
			continue
		}
		if client.Deliver(event) {
			delivered++
		}
	}
	return delivered
}

// Has reports whether the client is subscribed.
func (r *Room) Has(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

// Router maps chat ids to subscribed sessions and back. Not safe for
// concurrent use; the hub goroutine owns it.
type Router struct {
	rooms  map[string]*Room
	joined map[*Client]map[string]struct{}
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		rooms:  make(map[string]*Room),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join subscribes the client to the chat room. Returns false if the client
// was already subscribed.
func (r *Router) Join(c *Client, chatID string) bool {
	room, ok := r.rooms[chatID]
	if !ok {
		room = NewRoom(chatID)
		r.rooms[chatID] = room
	}
	if !room.AddClient(c) {
		return false
	}
	chats, ok := r.joined[c]
	if !ok {
		chats = make(map[string]struct{})
		r.joined[c] = chats
	}
	chats[chatID] = struct{}{}
	return true
}

// Room returns the room for a chat, or nil if nobody is subscribed.
func (r *Router) Room(chatID string) *Room {
	return r.rooms[chatID]
}

// Members returns the sessions subscribed to the chat.
func (r *Router) Members(chatID string) []*Client {
	room := r.rooms[chatID]
	if room == nil {
		return nil
	}
	out := make([]*Client, 0, len(room.clients))
	for c := range room.clients {
		out = append(out, c)
	}
	return out
}

// Subscribed reports whether the client is in the chat room.
func (r *Router) Subscribed(c *Client, chatID string) bool {
	room, ok := r.rooms[chatID]
	return ok && room.Has(c)
}

// Chats returns the sorted chat ids the client is subscribed to.
func (r *Router) Chats(c *Client) []string {
	chats := make([]string, 0, len(r.joined[c]))
	for id := range r.joined[c] {
		chats = append(chats, id)
	}
	sort.Strings(chats)
	return chats
}

// DropClient removes the client from every room it joined and returns those
// chat ids. Rooms left empty are discarded.
func (r *Router) DropClient(c *Client) []string {
	chats := r.Chats(c)
	for _, id := range chats {
		room := r.rooms[id]
		if room == nil {
			continue
		}
		room.RemoveClient(c)
		if room.Empty() {
			delete(r.rooms, id)
		}
	}
	delete(r.joined, c)
	return chats
}
