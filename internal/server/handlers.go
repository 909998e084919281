// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the handler for WebSocket upgrade requests.
// It validates that the request uses the GET method, upgrades the HTTP
// connection to WebSocket, creates a new Client with a fresh connection
// identity, and registers it with the hub, which launches the pump
// goroutines.
func NewWebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		hub.Register(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Connectify server is running!")
}

// TestPageHandler serves an HTML test page for exercising the chat protocol.
// It provides a simple web interface to join a room, send messages, and
// watch presence updates in real time.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Connectify Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #layout { display: flex; gap: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            width: 500px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #roster {
            border: 1px solid #ccc;
            height: 300px;
            width: 150px;
            padding: 10px;
            margin: 10px 0;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .meta { color: gray; font-style: italic; }
        .time { color: #999; font-size: 0.8em; margin-left: 5px; }
    </style>
</head>
<body>
    <h1>Connectify Chat Test</h1>

    <div>
        <input type="text" id="usernameInput" placeholder="Username">
        <input type="text" id="roomInput" placeholder="Room" value="lobby">
        <button id="joinButton" onclick="join()">Join</button>
    </div>

    <div id="layout">
        <div id="messages"></div>
        <div id="roster"><em>Not joined</em></div>
    </div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const rosterDiv = document.getElementById('roster');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');

        function addMessage(username, text, time) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            if (username) {
                el.innerHTML = '<strong>' + username + ':</strong> ' + text +
                    '<span class="time">' + (time || '') + '</span>';
            } else {
                el.className = 'meta';
                el.textContent = text;
            }
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderRoster(room, users) {
            rosterDiv.innerHTML = '<strong>' + room + '</strong><hr>' +
                users.map(u => '<div>' + u.username + '</div>').join('');
        }

        function join() {
            const username = document.getElementById('usernameInput').value.trim();
            const room = document.getElementById('roomInput').value.trim();
            if (!username || !room) {
                addMessage(null, 'Enter a username and a room first');
                return;
            }

            if (!ws || ws.readyState !== WebSocket.OPEN) {
                ws = new WebSocket('ws://' + location.host + '/ws');

                ws.onopen = function() {
                    ws.send(JSON.stringify({type: 'joinRoom', username: username, room: room}));
                    messageInput.disabled = false;
                    sendButton.disabled = false;
                };

                ws.onmessage = function(event) {
                    const msg = JSON.parse(event.data);
                    if (msg.type === 'message') {
                        addMessage(msg.username, msg.text, msg.time);
                    } else if (msg.type === 'roomUsers') {
                        renderRoster(msg.room, msg.users);
                    }
                };

                ws.onclose = function() {
                    addMessage(null, 'Connection closed');
                    messageInput.disabled = true;
                    sendButton.disabled = true;
                    ws = null;
                };
            } else {
                ws.send(JSON.stringify({type: 'joinRoom', username: username, room: room}));
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'chatMessage', text: text}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
