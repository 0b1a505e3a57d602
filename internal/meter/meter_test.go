package meter

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/audio"
	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

// mockSource records lifecycle calls and checks their order.
type mockSource struct {
	mu       sync.Mutex
	starts   int
	stops    int
	releases int
	fills    int
	misuse   []string

	startErr error
	fill     func(buf []int16) (int, error)
	active   *atomic.Int32 // shared across sources; counts started, unreleased sources
}

func (s *mockSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.starts > s.stops {
		s.misuse = append(s.misuse, "start without stop")
	}
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	if s.active != nil && s.active.Add(1) > 1 {
		s.misuse = append(s.misuse, "two sources active")
	}
	return nil
}

func (s *mockSource) Fill(buf []int16) (int, error) {
	s.mu.Lock()
	s.fills++
	fill := s.fill
	s.mu.Unlock()
	if fill == nil {
		return 0, nil
	}
	return fill(buf)
}

func (s *mockSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *mockSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	if s.releases > 1 {
		s.misuse = append(s.misuse, "released twice")
	}
	if s.starts > 0 && s.startErr == nil && s.active != nil {
		s.active.Add(-1)
	}
	return nil
}

func (s *mockSource) counts() (starts, stops, releases, fills int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.releases, s.fills
}

func (s *mockSource) problems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.misuse...)
}

// constantFill fills every sample with v.
func constantFill(v int16) func([]int16) (int, error) {
	return func(buf []int16) (int, error) {
		for i := range buf {
			buf[i] = v
		}
		return len(buf), nil
	}
}

// recorder is a factory that remembers every source it created.
type recorder struct {
	mu      sync.Mutex
	sources []*mockSource
	make    func() *mockSource
}

func (r *recorder) factory() (audio.Source, error) {
	src := r.make()
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
	return src, nil
}

func (r *recorder) all() []*mockSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mockSource(nil), r.sources...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestInitialReading(t *testing.T) {
	m := New(func() (audio.Source, error) { return &mockSource{}, nil }, Options{})
	r := m.Reading()
	if r.Score != 0 || r.Loud {
		t.Errorf("initial reading = %+v, want zero score and not loud", r)
	}
	if m.State() != types.StateIdle {
		t.Errorf("initial state = %q, want idle", m.State())
	}
}

func TestStartPublishesReadings(t *testing.T) {
	src := &mockSource{fill: constantFill(20000)}
	var published atomic.Int32
	m := New(func() (audio.Source, error) { return src, nil }, Options{
		BufferSize: 256,
		Interval:   time.Millisecond,
		OnReading:  func(types.Reading) { published.Add(1) },
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.IsSampling() {
		t.Error("meter should be sampling after Start")
	}
	waitFor(t, "a reading", func() bool { return published.Load() > 0 })

	r := m.Reading()
	// 20000/32768 is about -4.29 dBFS, a score of about 55.7.
	if !r.Loud || r.Score < 55 || r.Score > 56 {
		t.Errorf("reading = %+v, want loud score near 55.7", r)
	}
	if r.Samples != 256 {
		t.Errorf("Samples = %d, want 256", r.Samples)
	}
	if r.Timestamp.IsZero() {
		t.Error("reading has no timestamp")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if starts, stops, releases, _ := src.counts(); starts != 1 || stops != 1 || releases != 1 {
		t.Errorf("lifecycle = start %d, stop %d, release %d; want 1 each", starts, stops, releases)
	}
	if m.State() != types.StateIdle {
		t.Errorf("state after Stop = %q, want idle", m.State())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	rec := &recorder{make: func() *mockSource { return &mockSource{} }}
	m := New(rec.factory, Options{Interval: time.Millisecond})

	for range 3 {
		if err := m.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("factory called %d times, want 1", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := New(func() (audio.Source, error) { return &mockSource{}, nil }, Options{})

	if err := m.Stop(); err != nil {
		t.Errorf("Stop while idle: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := m.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}
}

func TestRapidStartStopNeverOverlaps(t *testing.T) {
	var active atomic.Int32
	rec := &recorder{make: func() *mockSource {
		return &mockSource{fill: constantFill(100), active: &active}
	}}
	m := New(rec.factory, Options{BufferSize: 64, Interval: time.Microsecond})

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 50 {
				_ = m.Start()
				_ = m.Stop()
				_ = m.Start()
			}
		})
	}
	wg.Wait()
	_ = m.Stop()

	for i, src := range rec.all() {
		if p := src.problems(); len(p) > 0 {
			t.Fatalf("source %d misuse: %v", i, p)
		}
		if starts, stops, releases, _ := src.counts(); starts != 1 || stops != 1 || releases != 1 {
			t.Fatalf("source %d lifecycle = start %d, stop %d, release %d; want 1 each", i, starts, stops, releases)
		}
	}
	if active.Load() != 0 {
		t.Errorf("%d sources still active after Stop", active.Load())
	}
}

func TestStartStopWithoutDataKeepsReading(t *testing.T) {
	loud := &mockSource{fill: constantFill(30000)}
	m := New(func() (audio.Source, error) { return loud, nil }, Options{Interval: time.Millisecond})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first reading", func() bool { return m.Reading().Loud })
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	before := m.Reading()

	// A source that never has data ready must leave the reading untouched.
	empty := &mockSource{fill: func([]int16) (int, error) { return 0, nil }}
	m.factory = func() (audio.Source, error) { return empty, nil }
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fills", func() bool { _, _, _, fills := empty.counts(); return fills >= 3 })
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	if after := m.Reading(); after != before {
		t.Errorf("reading changed from %+v to %+v", before, after)
	}
}

func TestNegativeCountKeepsReading(t *testing.T) {
	src := &mockSource{fill: func([]int16) (int, error) { return -1, nil }}
	m := New(func() (audio.Source, error) { return src, nil }, Options{Interval: time.Millisecond})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fills", func() bool { _, _, _, fills := src.counts(); return fills >= 3 })
	_ = m.Stop()

	if r := m.Reading(); r != (types.Reading{}) {
		t.Errorf("reading = %+v, want initial reading", r)
	}
}

func TestPartialFillUsesCount(t *testing.T) {
	src := &mockSource{fill: func(buf []int16) (int, error) {
		for i := range buf {
			buf[i] = 30000
		}
		// Only the first 10 samples are valid; they are silent.
		clear(buf[:10])
		return 10, nil
	}}
	var got atomic.Pointer[types.Reading]
	m := New(func() (audio.Source, error) { return src, nil }, Options{
		BufferSize: 128,
		Interval:   time.Millisecond,
		OnReading:  func(r types.Reading) { got.Store(&r) },
	})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "a reading", func() bool { return got.Load() != nil })
	_ = m.Stop()

	r := got.Load()
	if r.Score != 0 || r.Loud || r.Samples != 10 {
		t.Errorf("reading = %+v, want silent reading over 10 samples", *r)
	}
}

func TestFactoryFailureStaysIdle(t *testing.T) {
	boom := errors.New("no device")
	m := New(func() (audio.Source, error) { return nil, boom }, Options{})

	err := m.Start()
	if !errors.Is(err, ErrSourceFactory) || !errors.Is(err, boom) {
		t.Fatalf("Start = %v, want ErrSourceFactory wrapping cause", err)
	}
	if m.State() != types.StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestSourceStartFailureReleases(t *testing.T) {
	boom := errors.New("device busy")
	src := &mockSource{startErr: boom}
	m := New(func() (audio.Source, error) { return src, nil }, Options{})

	if err := m.Start(); !errors.Is(err, boom) {
		t.Fatalf("Start = %v, want %v", err, boom)
	}
	if m.State() != types.StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	if _, _, releases, fills := src.counts(); releases != 1 || fills != 0 {
		t.Errorf("release %d, fills %d; want 1 release and no fills", releases, fills)
	}

	// A later Start gets a fresh attempt.
	src2 := &mockSource{}
	m.factory = func() (audio.Source, error) { return src2, nil }
	if err := m.Start(); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	_ = m.Stop()
}

func TestFillErrorEndsSession(t *testing.T) {
	boom := errors.New("device unplugged")
	src := &mockSource{fill: func([]int16) (int, error) { return 0, boom }}
	ended := make(chan SessionEnd, 1)
	m := New(func() (audio.Source, error) { return src, nil }, Options{
		Interval:     time.Millisecond,
		OnSessionEnd: func(e SessionEnd) { ended <- e },
	})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ended:
		if !errors.Is(e.Err, boom) {
			t.Errorf("session error = %v, want %v", e.Err, boom)
		}
		if e.Buffers != 0 {
			t.Errorf("Buffers = %d, want 0", e.Buffers)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after fill error")
	}

	waitFor(t, "idle", func() bool { return !m.IsSampling() })
	if m.LastError() != boom.Error() {
		t.Errorf("LastError = %q, want %q", m.LastError(), boom.Error())
	}
	if _, stops, releases, fills := src.counts(); stops != 1 || releases != 1 || fills != 1 {
		t.Errorf("stop %d, release %d, fills %d; want 1 each with no retry", stops, releases, fills)
	}
	if r := m.Reading(); r != (types.Reading{}) {
		t.Errorf("failed fill changed reading to %+v", r)
	}

	// An explicit Start begins a new session and clears the error.
	src2 := &mockSource{}
	m.factory = func() (audio.Source, error) { return src2, nil }
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if m.LastError() != "" {
		t.Errorf("LastError after restart = %q, want empty", m.LastError())
	}
	_ = m.Stop()
	if starts, _, _, _ := src2.counts(); starts != 1 {
		t.Errorf("second source starts = %d, want 1", starts)
	}
}

func TestStopIsPrompt(t *testing.T) {
	src := &mockSource{fill: constantFill(1000)}
	m := New(func() (audio.Source, error) { return src, nil }, Options{Interval: time.Hour})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first fill", func() bool { _, _, _, fills := src.counts(); return fills == 1 })

	begin := time.Now()
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("Stop took %v with a 1h interval", elapsed)
	}
}

func TestSessionEndReport(t *testing.T) {
	src := &mockSource{fill: constantFill(5000)}
	var end SessionEnd
	m := New(func() (audio.Source, error) { return src, nil }, Options{
		Interval:     time.Millisecond,
		OnSessionEnd: func(e SessionEnd) { end = e },
	})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "fills", func() bool { _, _, _, fills := src.counts(); return fills >= 3 })
	_ = m.Stop()

	// Stop joins the loop, so the callback has already run.
	if end.Err != nil || end.Buffers < 3 || !end.Ended.After(end.Started) {
		t.Errorf("unexpected session end %+v", end)
	}
	if got := m.Status().Sessions; got != 1 {
		t.Errorf("Sessions = %d, want 1", got)
	}
}

func TestSetScale(t *testing.T) {
	src := &mockSource{fill: constantFill(3000)}
	m := New(func() (audio.Source, error) { return src, nil }, Options{Interval: time.Millisecond})
	m.SetScale(audio.Scale{Offset: 80, Max: 80, LoudThreshold: 40})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	// 3000/32768 is about -20.8 dBFS: score 59.2 with an 80 offset.
	waitFor(t, "loud reading", func() bool { return m.Reading().Loud })
	_ = m.Stop()

	if got := m.Scale().Max; got != 80 {
		t.Errorf("Scale().Max = %v, want 80", got)
	}
}

func TestSessionStartRunsBeforeFirstReading(t *testing.T) {
	src := &mockSource{fill: constantFill(8000)}
	var started atomic.Bool
	var early atomic.Bool
	m := New(func() (audio.Source, error) { return src, nil }, Options{
		Interval:       time.Millisecond,
		OnSessionStart: func(time.Time) { started.Store(true) },
		OnReading: func(types.Reading) {
			if !started.Load() {
				early.Store(true)
			}
		},
	})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if !started.Load() {
		t.Fatal("OnSessionStart did not run inside Start")
	}
	waitFor(t, "reading", func() bool { _, _, _, fills := src.counts(); return fills >= 2 })
	_ = m.Stop()

	if early.Load() {
		t.Error("reading published before OnSessionStart")
	}
}

func TestStartAfterSelfEndedSessionStartsAgain(t *testing.T) {
	boom := errors.New("read failed")
	rec := &recorder{make: func() *mockSource {
		return &mockSource{fill: func([]int16) (int, error) { return 0, boom }}
	}}
	m := New(rec.factory, Options{Interval: time.Millisecond})

	for i := range 5 {
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		waitFor(t, "session end", func() bool { return !m.IsSampling() })
		if got := len(rec.all()); got != i+1 {
			t.Fatalf("after %d starts factory ran %d times", i+1, got)
		}
	}
	_ = m.Stop()
}
