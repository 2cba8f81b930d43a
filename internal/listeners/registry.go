package listeners

import (
	"log"
	"net"
	"sync"
)

// ChatClient is one authenticated chat connection.
type ChatClient struct {
	conn      net.Conn
	addr      string
	empNo     string
	sessionID string
	closeOnce sync.Once
}

// Close shuts the socket down exactly once, no matter how many cleanup
// paths race to it.
func (c *ChatClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// Registry tracks the live chat connections. Broadcast sends over a
// snapshot so a slow or dead peer never stalls the sender's critical path.
type Registry struct {
	mu      sync.Mutex
	clients []*ChatClient
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(client *ChatClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, client)
}

func (r *Registry) Remove(client *ChatClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.clients {
		if c == client {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return
		}
	}
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Broadcast fans a message out to every client except the sender. Peers
// that fail the write are pruned and closed afterwards.
func (r *Registry) Broadcast(message []byte, sender *ChatClient) {
	r.mu.Lock()
	snapshot := make([]*ChatClient, len(r.clients))
	copy(snapshot, r.clients)
	r.mu.Unlock()

	var dead []*ChatClient
	for _, client := range snapshot {
		if client == sender {
			continue
		}
		if _, err := client.conn.Write(message); err != nil {
			dead = append(dead, client)
		}
	}

	for _, client := range dead {
		r.Remove(client)
		client.Close()
	}
}

// ForceDisconnectDuplicates closes every other connection authenticated as
// the same employee, notifying each before the socket drops.
func (r *Registry) ForceDisconnectDuplicates(empNo string, current *ChatClient) int {
	r.mu.Lock()
	var duplicates []*ChatClient
	for _, client := range r.clients {
		if client.empNo == empNo && client != current {
			duplicates = append(duplicates, client)
		}
	}
	r.mu.Unlock()

	for _, client := range duplicates {
		_, _ = client.conn.Write([]byte("SERVER: DUPLICATE_LOGIN - 다른 곳에서 로그인되어 연결을 종료합니다.\n"))
		client.Close()
		r.Remove(client)
	}

	if len(duplicates) > 0 {
		log.Printf("[AUTH] %s: force-closed %d duplicate connection(s)", empNo, len(duplicates))
	}
	return len(duplicates)
}
