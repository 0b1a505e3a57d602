// Package meter runs the loudness sampling loop against an audio source.
//
// A Meter moves between two states: idle, with no source acquired, and
// sampling, with exactly one goroutine filling buffers from a freshly
// created source. The latest reading is published atomically so readers
// never block the loop.
package meter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// ErrSourceFactory is wrapped around errors returned by the source factory.
var ErrSourceFactory = errors.New("create audio source")

// SourceFactory returns a new, unstarted source for one sampling session.
type SourceFactory func() (audio.Source, error)

// SessionEnd describes a finished sampling session.
type SessionEnd struct {
	Started time.Time
	Ended   time.Time
	Buffers int   // Buffers that produced a reading
	Err     error // Terminal error, nil when stopped on request
}

// Options configures a Meter. Zero values select defaults.
type Options struct {
	BufferSize int           // Samples per fill (default 1024)
	Interval   time.Duration // Delay between fills (default 50ms)
	Scale      audio.Scale   // Score mapping (default audio.DefaultScale)

	// OnSessionStart runs inside Start once the source is live, before the
	// first fill.
	OnSessionStart func(started time.Time)
	// OnReading runs on the sampling goroutine after each publish.
	OnReading func(types.Reading)
	// OnSessionEnd runs on the sampling goroutine after the source is released.
	// No callback may call Start or Stop.
	OnSessionEnd func(SessionEnd)
}

// Meter samples an audio source on a fixed interval.
type Meter struct {
	factory SourceFactory
	opts    Options

	reading  atomic.Pointer[types.Reading]
	scale    atomic.Pointer[audio.Scale]
	interval atomic.Int64

	// lifecycle serializes Start and Stop; it is never taken by the loop.
	lifecycle sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}

	mu        sync.RWMutex
	state     types.MeterState
	startTime time.Time
	lastError string
	sessions  int
}

// New creates an idle meter. The initial reading has a zero score.
func New(factory SourceFactory, opts Options) *Meter {
	if opts.BufferSize <= 0 {
		opts.BufferSize = types.DefaultBufferSize
	}
	if opts.Interval <= 0 {
		opts.Interval = types.DefaultUpdateInterval
	}
	if opts.Scale == (audio.Scale{}) {
		opts.Scale = audio.DefaultScale
	}

	m := &Meter{
		factory: factory,
		opts:    opts,
		state:   types.StateIdle,
	}
	m.reading.Store(&types.Reading{})
	m.SetScale(opts.Scale)
	m.SetInterval(opts.Interval)
	return m
}

// Reading returns the latest published reading.
func (m *Meter) Reading() types.Reading {
	return *m.reading.Load()
}

// Scale returns the score mapping in use.
func (m *Meter) Scale() audio.Scale {
	return *m.scale.Load()
}

// SetScale replaces the score mapping. It takes effect on the next buffer.
func (m *Meter) SetScale(s audio.Scale) {
	m.scale.Store(&s)
}

// SetInterval replaces the delay between fills. Values <= 0 are ignored.
func (m *Meter) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval.Store(int64(d))
	}
}

// State returns the current meter state.
func (m *Meter) State() types.MeterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsSampling reports whether a sampling session is active.
func (m *Meter) IsSampling() bool {
	return m.State() == types.StateSampling
}

// LastError returns the terminal error of the most recent failed session.
func (m *Meter) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// Status returns the meter status. Backend is left for the caller to fill.
func (m *Meter) Status() types.MeterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := ""
	if m.state == types.StateSampling {
		uptime = time.Since(m.startTime).Truncate(time.Second).String()
	}
	return types.MeterStatus{
		State:     m.state,
		Uptime:    uptime,
		LastError: m.lastError,
		Sessions:  m.sessions,
	}
}

// Start acquires a fresh source and begins sampling. It is a no-op while
// already sampling. If the source cannot be created or started, the meter
// stays idle and the error is returned.
func (m *Meter) Start() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.done != nil {
		if m.IsSampling() {
			return nil
		}
		// Previous session ended on its own; wait out its shutdown.
		<-m.done
		m.stopCh, m.done = nil, nil
	}

	src, err := m.factory()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceFactory, err)
	}
	if src == nil {
		return fmt.Errorf("%w: factory returned no source", ErrSourceFactory)
	}

	if err := src.Start(); err != nil {
		if relErr := src.Release(); relErr != nil {
			slog.Warn("failed to release audio source after start failure", "error", relErr)
		}
		return fmt.Errorf("start audio source: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	m.state = types.StateSampling
	m.startTime = now
	m.lastError = ""
	m.mu.Unlock()

	if m.opts.OnSessionStart != nil {
		m.opts.OnSessionStart(now)
	}

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(src, m.stopCh, m.done, now)

	slog.Info("meter started", "buffer_size", m.opts.BufferSize, "interval", time.Duration(m.interval.Load()))
	return nil
}

// Stop ends the sampling session and waits until the source is released.
// It is a no-op while idle.
func (m *Meter) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.done == nil {
		return nil
	}

	close(m.stopCh)
	<-m.done
	m.stopCh, m.done = nil, nil
	return nil
}

// run is the sampling loop. It owns src for the whole session.
func (m *Meter) run(src audio.Source, stopCh <-chan struct{}, done chan<- struct{}, started time.Time) {
	defer close(done)

	buf := make([]int16, m.opts.BufferSize)
	timer := time.NewTimer(time.Duration(m.interval.Load()))
	defer timer.Stop()

	var buffers int
	var runErr error

loop:
	for {
		select {
		case <-stopCh:
			break loop
		default:
		}

		n, err := src.Fill(buf)
		if err != nil {
			runErr = err
			break loop
		}
		if n > 0 {
			buffers++
			m.publish(buf, n)
		}

		timer.Reset(time.Duration(m.interval.Load()))
		select {
		case <-stopCh:
			break loop
		case <-timer.C:
		}
	}

	stopErr := src.Stop()
	releaseErr := src.Release()
	if stopErr != nil || releaseErr != nil {
		slog.Warn("audio source shutdown failed", "error", errors.Join(stopErr, releaseErr))
	}

	ended := time.Now()
	m.mu.Lock()
	m.state = types.StateIdle
	m.sessions++
	if runErr != nil {
		m.lastError = runErr.Error()
	}
	m.mu.Unlock()

	if runErr != nil {
		slog.Error("meter session ended", "error", runErr, "buffers", buffers)
	} else {
		slog.Info("meter stopped", "buffers", buffers, "duration", ended.Sub(started).Truncate(time.Millisecond))
	}

	if m.opts.OnSessionEnd != nil {
		m.opts.OnSessionEnd(SessionEnd{
			Started: started,
			Ended:   ended,
			Buffers: buffers,
			Err:     runErr,
		})
	}
}

// publish measures the first n samples and stores the result as the latest reading.
func (m *Meter) publish(buf []int16, n int) {
	meas := m.scale.Load().Measure(buf, n)
	r := &types.Reading{
		Score:     meas.Score,
		Loud:      meas.Loud,
		Bar:       meas.Bar,
		DBFS:      meas.DBFS,
		Peak:      meas.Peak,
		Clipped:   meas.Clipped,
		Samples:   min(n, len(buf)),
		Timestamp: time.Now(),
	}
	m.reading.Store(r)

	if m.opts.OnReading != nil {
		m.opts.OnReading(*r)
	}
}
