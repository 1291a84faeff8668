package events

import "sync"

// Pool hands out one Client per URL so every consumer of the same robot
// shares a single connection.
type Pool struct {
	opts []Option

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool; opts apply to every client it creates.
func NewPool(opts ...Option) *Pool {
	return &Pool{opts: opts, clients: make(map[string]*Client)}
}

// Get returns the client for url, creating it on first use.
func (p *Pool) Get(url string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[url]; ok {
		return c
	}
	opts := append(append([]Option(nil), p.opts...), WithURL(url))
	c := NewClient(opts...)
	p.clients[url] = c
	return c
}

// Close releases every client in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*Client)
	p.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	return nil
}
