// Package server coordinates client registration, room broadcast, presence
// updates, and connection cleanup for the Connectify WebSocket system via
// the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// inboundEvent pairs a decoded client event with the connection it arrived on.
type inboundEvent struct {
	client *Client
	event  ClientEvent
}

// remoteBroadcast is a room broadcast received from a peer process through
// the cross-process fanout.
type remoteBroadcast struct {
	room    string
	payload []byte
}

// Hub manages all WebSocket client connections, routes join/chat/disconnect
// events, and broadcasts messages to room members. Every event is handled to
// completion inside Run before the next one is processed, so presence
// mutations and the roster snapshots that follow them never interleave.
type Hub struct {
	clients    map[string]*Client
	presence   *Presence
	fanout     *Fanout
	register   chan *Client
	unregister chan *Client
	events     chan inboundEvent
	remote     chan remoteBroadcast
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with its own presence
// store and all necessary channels. The returned Hub is ready to manage
// WebSocket connections once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		presence:   NewPresence(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan inboundEvent, 256),
		remote:     make(chan remoteBroadcast, 256),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// AttachFanout wires an optional cross-process fanout into the hub. Must be
// called before Run; a hub without a fanout delivers broadcasts locally only.
func (h *Hub) AttachFanout(f *Fanout) {
	h.fanout = f
}

// Context returns the hub's lifetime context. It is canceled when Shutdown
// is initiated, which also stops an attached fanout loop.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Register queues a client for registration with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// DeliverRemote hands a broadcast received from a peer process to the hub's
// event loop for delivery to local members of the room. It never blocks; if
// the hub is overloaded the broadcast is dropped, matching the best-effort
// delivery contract of the fanout.
func (h *Hub) DeliverRemote(room string, payload []byte) {
	select {
	case h.remote <- remoteBroadcast{room: room, payload: payload}:
	default:
		log.Printf("Dropping remote broadcast for room %q: hub event queue full", room)
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, inbound client events, and remote broadcasts. This method
// should be called in a separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case in := <-h.events:
			h.handleEvent(in)

		case rb := <-h.remote:
			h.deliverToRoom(rb.room, rb.payload, "")
		}
	}
}

// handleRegister adds a client to the connection table and launches its
// read/write pumps.
func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// handleUnregister removes a client from the connection table and performs
// the leave transition: if the connection had joined a room, the remaining
// members get a leave announcement and a fresh roster snapshot. Duplicate
// unregister signals are harmless no-ops.
func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		client.closed = true
		clientCount := len(h.clients)
		h.mutex.Unlock()
		// Close the channel after releasing the lock
		close(client.send)
		log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
	} else {
		h.mutex.Unlock()
	}

	user, ok := h.presence.Leave(client.id)
	if !ok {
		return
	}

	h.broadcastToRoom(user.Room, formatMessage(botName, user.Username+" has left the chat"), "")
	h.broadcastRoomUsers(user.Room)
}

// handleEvent routes a decoded client event to the matching transition.
// Unknown event types are dropped; the protocol has no error event to
// surface them with.
func (h *Hub) handleEvent(in inboundEvent) {
	switch in.event.Type {
	case EventJoinRoom:
		h.handleJoin(in.client, in.event.Username, in.event.Room)
	case EventChatMessage:
		h.handleChat(in.client, in.event.Text)
	default:
		log.Printf("Ignoring unknown event type %q from %s", in.event.Type, in.client.addr)
	}
}

// handleJoin performs the join transition: record presence, welcome the
// joining connection privately, announce the join to the other members, and
// send everyone the updated roster. Joining while already joined is treated
// as a fresh join with overwrite semantics.
func (h *Hub) handleJoin(client *Client, username, room string) {
	if username == "" || room == "" {
		log.Printf("Ignoring joinRoom with empty username or room from %s", client.addr)
		return
	}

	user := h.presence.Join(client.id, username, room)
	log.Printf("Client %s joined room %q as %q", client.id, room, username)

	h.sendToClient(client, formatMessage(botName, welcomeText))
	h.broadcastToRoom(room, formatMessage(botName, user.Username+" has joined the chat"), client.id)
	h.broadcastRoomUsers(room)
}

// handleChat broadcasts a chat message to every member of the sender's room,
// including the sender, which relies on the echo to render its own message.
// A message from a connection with no presence entry is silently dropped.
func (h *Hub) handleChat(client *Client, text string) {
	user, ok := h.presence.Get(client.id)
	if !ok {
		log.Printf("Dropping chat message from %s: no joined user", client.addr)
		return
	}

	h.broadcastToRoom(user.Room, formatMessage(user.Username, text), "")
}

// broadcastToRoom delivers a payload to every local member of a room, minus
// an optional excluded connection, and relays it to peer processes when the
// fanout is attached. Delivery is fire-and-forget.
func (h *Hub) broadcastToRoom(room string, payload any, excludeID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal broadcast for room %q: %v", room, err)
		return
	}

	h.deliverToRoom(room, data, excludeID)

	if h.fanout != nil {
		h.fanout.Publish(room, data)
	}
}

// broadcastRoomUsers sends the current roster snapshot to every member of a
// room. Called after every join and leave.
func (h *Hub) broadcastRoomUsers(room string) {
	snapshot := RoomUsersEvent{
		Type:  EventRoomUsers,
		Room:  room,
		Users: h.presence.UsersInRoom(room),
	}
	h.broadcastToRoom(room, snapshot, "")
}

// deliverToRoom writes raw payload bytes to the local members of a room.
// Membership comes from the local presence store, which is also how remote
// broadcasts are scoped: the broker has no concept of rooms.
func (h *Hub) deliverToRoom(room string, data []byte, excludeID string) {
	var clientsToRemove []*Client

	for _, member := range h.presence.UsersInRoom(room) {
		if member.ID == excludeID {
			continue
		}

		h.mutex.RLock()
		client := h.clients[member.ID]
		h.mutex.RUnlock()
		if client == nil {
			continue
		}

		if !h.safeSend(client, data) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// sendToClient delivers a payload to a single connection only.
func (h *Hub) sendToClient(client *Client, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal message for %s: %v", client.addr, err)
		return
	}

	if !h.safeSend(client, data) {
		h.removeFailedClients([]*Client{client})
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients removes clients whose send buffers are full and closes
// their channels. Their presence entries stay until the read pump observes
// the closed connection and triggers the normal leave transition.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s removed due to full send buffer", client.id)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete. It returns after all client connections are closed
// and goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// ClientCount returns the number of currently registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
