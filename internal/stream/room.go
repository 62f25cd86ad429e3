// Package stream fans messages out to websocket clients.
package stream

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 64
	writeWait         = time.Second
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// Room forwards every broadcast message to every joined client. A client
// that cannot keep up misses messages instead of slowing the room down.
type Room struct {
	// forward holds incoming messages that should be forwarded to the
	// clients.
	forward chan []byte
	// join is a channel for clients wishing to join the room.
	join chan *client
	// leave is a channel for clients wishing to leave the room.
	leave chan *client
	// clients holds all current clients in this room.
	clients map[*client]bool
	// count receives the number of clients on request.
	count chan chan int
	// done is closed when Run returns.
	done chan struct{}

	logger *log.Logger
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
}

// NewRoom makes a new room that is ready to run. A nil logger uses
// log.Default.
func NewRoom(logger *log.Logger) *Room {
	if logger == nil {
		logger = log.Default()
	}
	return &Room{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		count:   make(chan chan int),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Run serves the room until ctx is done, then disconnects every client.
func (r *Room) Run(ctx context.Context) {
	defer func() {
		for c := range r.clients {
			delete(r.clients, c)
			close(c.send)
		}
		close(r.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.join:
			r.clients[c] = true
			r.logger.Println("stream: new client joined")
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
				r.logger.Println("stream: client left")
			}
		case reply := <-r.count:
			reply <- len(r.clients)
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
		}
	}
}

// Broadcast queues msg for every client. It never blocks; the message is
// dropped when the room is busy.
func (r *Room) Broadcast(msg []byte) bool {
	select {
	case r.forward <- msg:
		return true
	default:
		return false
	}
}

// Clients returns the number of joined clients. The room must be running.
func (r *Room) Clients(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case r.count <- reply:
	case <-r.done:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-reply, nil
}

// ServeHTTP upgrades the request to a websocket and joins it to the room.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Println("stream: could not upgrade connection:", err)
		return
	}

	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}

	go c.write()
	c.read()

	select {
	case r.leave <- c:
	case <-r.done:
	}
}

// read discards incoming messages until the client goes away.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
