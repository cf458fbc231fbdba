// Package captcha coordinates the pause/resume barrier raised when the
// origin site answers with an anti-bot challenge instead of data.
package captcha

import (
	"context"
	"fmt"
	"sync"
)

// Gate is a shared open/closed flag every fetch attempt must wait on before
// issuing a request. While the gate is closed all waiters park; reopening
// releases them at once.
type Gate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{open: true, opened: ch}
}

// Wait blocks until the gate is open or the context ends.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.open {
			g.mu.Unlock()
			return nil
		}
		opened := g.opened
		g.mu.Unlock()

		select {
		case <-opened:
		case <-ctx.Done():
			return fmt.Errorf("gate wait: %w", ctx.Err())
		}
	}
}

// Close shuts the gate. Subsequent Wait calls park until Open.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.opened = make(chan struct{})
}

// Open reopens the gate and releases all waiters.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.opened)
}

// IsOpen reports the current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
