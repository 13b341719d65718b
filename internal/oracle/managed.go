package oracle

import (
	"context"
	"sync"
)

// Factory constructs a fresh Oracle process handle. Called at most once
// per lazy start and once per restart after a crash.
type Factory func() (Oracle, error)

// Managed lazily starts an Oracle on first use and restarts it whenever
// Available reports false, mirroring the embedder's one-instance-per-process
// lifecycle: never one per request, because a per-request oracle leaks
// subprocesses and exhausts the host within O(10) requests (§4.8).
type Managed struct {
	factory Factory

	mu      sync.Mutex
	current Oracle
}

// NewManaged wraps factory in a lazily-started, crash-restarted handle.
func NewManaged(factory Factory) *Managed {
	return &Managed{factory: factory}
}

// ensure returns the live oracle instance, starting or restarting it as
// needed. Returns NoOp{} if the factory itself fails — the system stays
// correct with the oracle absent.
func (m *Managed) ensure(ctx context.Context) Oracle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Available(ctx) {
		return m.current
	}
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	fresh, err := m.factory()
	if err != nil {
		return NoOp{}
	}
	m.current = fresh
	return fresh
}

func (m *Managed) Hover(ctx context.Context, file string, line, char int) (string, bool) {
	return m.ensure(ctx).Hover(ctx, file, line, char)
}

func (m *Managed) Definition(ctx context.Context, file string, line, char int) (Location, bool) {
	return m.ensure(ctx).Definition(ctx, file, line, char)
}

func (m *Managed) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Available(ctx)
}

func (m *Managed) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}

var _ Oracle = (*Managed)(nil)
