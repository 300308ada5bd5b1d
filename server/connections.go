package chunkserv

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	ID          uuid.UUID
	Addr        string
	ConnectedAt time.Time

	activeRequests atomic.Int32
}

// ClientInfo is the JSON view of a connected caller.
type ClientInfo struct {
	ID             string    `json:"id"`
	Addr           string    `json:"addr"`
	ConnectedAt    time.Time `json:"connectedAt"`
	ActiveRequests int       `json:"activeRequests"`
}

func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ID:             c.ID.String(),
		Addr:           c.Addr,
		ConnectedAt:    c.ConnectedAt,
		ActiveRequests: int(c.activeRequests.Load()),
	}
}

type ClientList struct {
	clients map[uuid.UUID]*Client
	mu      sync.RWMutex
}

func NewClientList() *ClientList {
	cl := &ClientList{
		clients: make(map[uuid.UUID]*Client),
	}
	return cl
}

func (cl *ClientList) Add(client *Client) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.clients[client.ID] = client
}

func (cl *ClientList) Remove(id uuid.UUID) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.clients, id)
}

func (cl *ClientList) Get(id uuid.UUID) (*Client, bool) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	client, ok := cl.clients[id]
	return client, ok
}

// List returns the connected clients ordered by connection time.
func (cl *ClientList) List() []ClientInfo {
	cl.mu.RLock()
	infos := make([]ClientInfo, 0, len(cl.clients))
	for _, c := range cl.clients {
		infos = append(infos, c.Info())
	}
	cl.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
