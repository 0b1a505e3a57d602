package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is the default duration that peak scores are held before decaying.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks the peak-hold marker of the meter bar.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a new peak holder at zero with the default duration.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{holdDuration: DefaultPeakHoldDuration}
}

// Update records a new score and returns the held peak.
func (p *PeakHolder) Update(score float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if score >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = score
		p.heldAt = now
	}
	return p.held
}

// Held returns the currently held peak.
func (p *PeakHolder) Held() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// SetHoldDuration updates the peak hold duration.
func (p *PeakHolder) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = 0
	p.heldAt = time.Time{}
}
