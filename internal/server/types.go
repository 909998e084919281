// Package server defines the wire-level payload types exchanged with chat
// clients and utility helpers reused across client and hub logic.
package server

import (
	"strings"
	"time"
)

// botName is the fixed sender identity used for welcome and join/leave
// announcements.
const botName = "ChatCord Bot"

// welcomeText greets a user on the connection that just joined a room.
const welcomeText = "Welcome to ChatCord!"

// Client event types accepted over the WebSocket connection.
const (
	EventJoinRoom    = "joinRoom"
	EventChatMessage = "chatMessage"
)

// Outbound event types delivered to connections.
const (
	EventMessage   = "message"
	EventRoomUsers = "roomUsers"
)

// ClientEvent represents the V1 JSON message format clients send to the
// server. Type selects the event; the remaining fields are populated
// depending on it.
type ClientEvent struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	Text     string `json:"text,omitempty"`
}

// MessageEvent is the payload delivered to clients for chat messages and
// system announcements.
type MessageEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
	Time     string `json:"time"`
}

// RoomUser is a single roster entry inside a RoomUsersEvent.
type RoomUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomUsersEvent is the full roster snapshot sent to every member of a room
// after each membership change.
type RoomUsersEvent struct {
	Type  string     `json:"type"`
	Room  string     `json:"room"`
	Users []RoomUser `json:"users"`
}

// formatMessage builds a MessageEvent stamped with the current wall-clock
// time in the "3:04 pm" format the clients render directly.
func formatMessage(username, text string) MessageEvent {
	return MessageEvent{
		Type:     EventMessage,
		Username: username,
		Text:     text,
		Time:     time.Now().Format("3:04 pm"),
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
