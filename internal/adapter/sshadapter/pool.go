// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/corexec/uce/pkg/result"
)

// poolKey identifies one pooled connection by its (user, host, port) triple.
type poolKey struct {
	user string
	host string
	port int
}

func (k poolKey) String() string {
	return fmt.Sprintf("%s@%s:%d", k.user, k.host, k.port)
}

// entry wraps a live client with its last-use timestamp for idle eviction.
type entry struct {
	client   *ssh.Client
	lastUsed time.Time
	leases   int
}

// Pool caches one *ssh.Client per (user, host, port), evicting idle entries
// on a sweep interval. It is keyed the same way invowk's SSH callback server
// keys its token map, and runs an identical ticker-driven sweeper
// (sshserver.Server.cleanupExpiredTokens) to reclaim entries nobody has
// leased recently.
//
// The pool fails fast rather than queuing when it is at MaxConnections:
// callers get *result.AdapterUnavailableError{Operation: "pool_exhausted"}
// instead of blocking, per the pool-exhaustion design decision.
type Pool struct {
	mu      sync.Mutex
	entries map[poolKey]*entry

	dial func(key poolKey, opts DialOptions) (*ssh.Client, error)

	MaxConnections int
	IdleTimeout    time.Duration

	logger   *log.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// DialOptions carries everything Pool.Get needs to establish a new
// connection when the pool has no cached entry for a key.
type DialOptions struct {
	Auth    ssh.AuthMethod
	Timeout time.Duration
}

// NewPool creates a connection pool. maxConnections <= 0 means unbounded;
// idleTimeout <= 0 disables the sweeper.
func NewPool(maxConnections int, idleTimeout time.Duration, logger *log.Logger) *Pool {
	p := &Pool{
		entries:        map[poolKey]*entry{},
		MaxConnections: maxConnections,
		IdleTimeout:    idleTimeout,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
	p.dial = p.dialReal
	if idleTimeout > 0 {
		go p.sweep()
	}
	return p
}

// sweep mirrors sshserver.Server.cleanupExpiredTokens's ticker loop,
// evicting entries idle past IdleTimeout with no outstanding lease.
func (p *Pool) sweep() {
	interval := p.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

// evictIdle closes every entry idle past IdleTimeout with no outstanding
// lease, fanning the closes out across a bounded errgroup since a host
// juggling many remote targets can have dozens of idle connections expire
// in the same tick.
func (p *Pool) evictIdle() {
	now := time.Now()
	p.mu.Lock()
	stale := make(map[poolKey]*ssh.Client)
	for k, e := range p.entries {
		if e.leases == 0 && now.Sub(e.lastUsed) > p.IdleTimeout {
			stale[k] = e.client
			delete(p.entries, k)
		}
	}
	p.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(4)
	for k, client := range stale {
		k, client := k, client
		g.Go(func() error {
			err := client.Close()
			if p.logger != nil {
				p.logger.Debug("evicted idle ssh connection", "key", k.String())
			}
			return err
		})
	}
	_ = g.Wait()
}

// Get returns a leased client for key, dialing a fresh connection if none is
// cached. Callers must call the returned release function when done.
func (p *Pool) Get(key poolKey, opts DialOptions) (*ssh.Client, func(), error) {
	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.leases++
		e.lastUsed = time.Now()
		p.mu.Unlock()
		return e.client, func() { p.release(key) }, nil
	}
	if p.MaxConnections > 0 && len(p.entries) >= p.MaxConnections {
		p.mu.Unlock()
		return nil, nil, &result.AdapterUnavailableError{
			Adapter:   "ssh",
			Operation: "pool_exhausted",
		}
	}
	p.mu.Unlock()

	client, err := p.dial(key, opts)
	if err != nil {
		return nil, nil, &result.ConnectionError{Host: key.String(), Cause: err}
	}

	p.mu.Lock()
	if p.MaxConnections > 0 && len(p.entries) >= p.MaxConnections {
		p.mu.Unlock()
		_ = client.Close()
		return nil, nil, &result.AdapterUnavailableError{Adapter: "ssh", Operation: "pool_exhausted"}
	}
	p.entries[key] = &entry{client: client, lastUsed: time.Now(), leases: 1}
	p.mu.Unlock()

	return client, func() { p.release(key) }, nil
}

// Evict drops key's cached entry without closing it, for callers that
// already know the underlying client is dead (a channel failure mid-session,
// per §4.7's failure rules) and don't want the next Get to hand it back out.
func (p *Pool) Evict(key poolKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

func (p *Pool) release(key poolKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		e.leases--
		e.lastUsed = time.Now()
	}
}

func (p *Pool) dialReal(key poolKey, opts DialOptions) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            key.user,
		Auth:            []ssh.AuthMethod{opts.Auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // no host-key pinning surface in §4.7
		Timeout:         opts.Timeout,
	}
	addr := fmt.Sprintf("%s:%d", key.host, key.port)
	return ssh.Dial("tcp", addr, cfg)
}

// Stats is a point-in-time snapshot of pool occupancy, exposed for callers
// that want visibility into connection reuse (§12 supplemented feature).
type Stats struct {
	Connections int
	LeasedNow   int
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Connections: len(p.entries)}
	for _, e := range p.entries {
		if e.leases > 0 {
			s.LeasedNow++
		}
	}
	return s
}

// Close closes every cached connection and stops the sweeper. Idempotent.
// Connections are closed concurrently (bounded, like evictIdle) and the
// first error wins.
func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	clients := make([]*ssh.Client, 0, len(p.entries))
	for k, e := range p.entries {
		clients = append(clients, e.client)
		delete(p.entries, k)
	}
	p.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, client := range clients {
		client := client
		g.Go(client.Close)
	}
	return g.Wait()
}
