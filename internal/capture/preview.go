package capture

import (
	"context"
	"sync"

	"github.com/murmurhq/murmur-capture/internal/device"
)

// Preview is the passive surface a live stream is bound to while the session
// holds it. The surface never owns the stream and is detached on every exit
// path. The headless agent binds a no-op surface; tests substitute fakes to
// exercise attachment and readiness failures.
type Preview interface {
	Attach(stream *device.Stream) error

	// Ready blocks until the surface can deliver a frame or ctx expires.
	Ready(ctx context.Context) error

	Detach()
}

// NopPreview returns the headless surface: attaches anything, always ready.
func NopPreview() Preview {
	return nopPreview{}
}

type nopPreview struct{}

func (nopPreview) Attach(*device.Stream) error { return nil }
func (nopPreview) Ready(context.Context) error { return nil }
func (nopPreview) Detach() {}

// FakePreview scripts attachment and readiness outcomes.
type FakePreview struct {
	mu          sync.Mutex
	attachErr   error
	neverReady  bool
	attached    bool
	detachCalls int
}

// NewFakePreview returns a preview that attaches and reports ready.
func NewFakePreview() *FakePreview {
	return &FakePreview{}
}

// FailAttach scripts the next Attach to fail.
func (p *FakePreview) FailAttach(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attachErr = err
}

// NeverReady makes Ready block until its context expires.
func (p *FakePreview) NeverReady(never bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.neverReady = never
}

// Attached reports whether a stream is currently bound.
func (p *FakePreview) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

// DetachCalls reports how many times Detach ran.
func (p *FakePreview) DetachCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detachCalls
}

// Attach implements Preview.
func (p *FakePreview) Attach(*device.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attachErr != nil {
		return p.attachErr
	}
	p.attached = true
	return nil
}

// Ready implements Preview.
func (p *FakePreview) Ready(ctx context.Context) error {
	p.mu.Lock()
	never := p.neverReady
	p.mu.Unlock()
	if !never {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

// Detach implements Preview.
func (p *FakePreview) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detachCalls++
	p.attached = false
}
