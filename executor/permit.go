package executor

import "context"

// Permit is the single counted semaphore of spec §5.1 that serializes the
// validate → execute → persist → finalize → emit critical section. Only
// one message is admitted at a time; suspensions inside the critical
// section are allowed, but no lock is held across a suspension other than
// the permit itself.
type Permit struct {
	ch chan struct{}
}

// NewPermit builds a Permit with the given concurrency (spec §5.1 names a
// single counted semaphore; concurrency is exposed for the producer permit
// in package highway, which is per-validator but otherwise identical in
// shape).
func NewPermit(concurrency int) *Permit {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Permit{ch: make(chan struct{}, concurrency)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (p *Permit) Acquire(ctx context.Context) error {
	select {
	case p.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot.
func (p *Permit) Release() {
	select {
	case <-p.ch:
	default:
	}
}
