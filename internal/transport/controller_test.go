package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/satindergrewal/melodai/internal/audio"
	apperrors "github.com/satindergrewal/melodai/internal/errors"
	"github.com/satindergrewal/melodai/internal/mixer"
)

const testRate = 24000

func constBuffer(frames int, v float32) *audio.Buffer {
	b := audio.NewBuffer(testRate, 1, frames)
	for i := range b.Data[0] {
		b.Data[0][i] = v
	}
	return b
}

type fakeLoader struct {
	mu       sync.Mutex
	vocals   map[string]*audio.Buffer
	inst     map[string]*audio.Buffer
	vocalErr error
	instErr  error
	gates    map[string]chan struct{} // blocks LoadVocal until closed
	onVocal  func(id string)
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		vocals: map[string]*audio.Buffer{},
		inst:   map[string]*audio.Buffer{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakeLoader) add(id string, vocalFrames, instFrames int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocals[id] = constBuffer(vocalFrames, 0.5)
	if instFrames > 0 {
		f.inst[id] = constBuffer(instFrames, 0.25)
	}
}

func (f *fakeLoader) LoadVocal(ctx context.Context, id string) (*audio.Buffer, error) {
	f.mu.Lock()
	gate := f.gates[id]
	hook := f.onVocal
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vocalErr != nil {
		return nil, f.vocalErr
	}
	b, ok := f.vocals[id]
	if !ok {
		return nil, apperrors.ErrTrackNotFound
	}
	return b, nil
}

func (f *fakeLoader) LoadInstrumental(ctx context.Context, id string) (*audio.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instErr != nil {
		return nil, f.instErr
	}
	b, ok := f.inst[id]
	if !ok {
		return nil, fmt.Errorf("%w: no backing for %s", apperrors.ErrInstrumentalUnavailable, id)
	}
	return b, nil
}

type harness struct {
	engine *mixer.Engine
	output *mixer.Output
	loader *fakeLoader
	ctrl   *Controller
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	engine := mixer.NewEngine(mixer.Config{SampleRate: testRate, Channels: 1}, zap.NewNop())
	output := mixer.NewOutput(engine, zap.NewNop())
	loader := newFakeLoader()
	if cfg.VocalGain == 0 && cfg.InstrumentalGain == 0 {
		cfg.VocalGain, cfg.InstrumentalGain = 1.0, 0.4
	}
	core, logs := observer.New(zap.InfoLevel)
	return &harness{
		engine: engine,
		output: output,
		loader: loader,
		ctrl:   NewController(engine, output, loader, cfg, zap.New(core)),
		logs:   logs,
	}
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

// --- State ---

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Idle, "idle"},
		{Loading, "loading"},
		{Playing, "playing"},
		{Stopping, "stopping"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

// --- Stop ---

func TestStopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i < 3; i++ {
		if err := h.ctrl.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i, err)
		}
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if h.ctrl.gen != 0 {
		t.Errorf("gen = %d, want 0", h.ctrl.gen)
	}
}

func TestStopReleasesGraph(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate/2)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	g := h.output.Current()
	if g == nil {
		t.Fatal("no graph attached after Play")
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if h.engine.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", h.engine.LiveNodes())
	}
	if h.output.Current() != nil {
		t.Error("output still attached after Stop")
	}
	if g.EndReason() != mixer.EndStopped {
		t.Errorf("EndReason = %v, want stopped", g.EndReason())
	}
}

func TestStopDuringLoadingDiscardsLoad(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)
	gate := make(chan struct{})
	h.loader.gates["a"] = gate

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Play(context.Background(), "a") }()
	waitState(t, h.ctrl, Loading)

	if err := h.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Play error = %v, want ErrSuperseded", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
	if h.engine.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", h.engine.LiveNodes())
	}
}

// --- Play ---

func TestPlayStartsSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate/2)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	s := h.ctrl.Status()
	if s.State != Playing || s.StateName != "playing" {
		t.Errorf("state = %v (%q), want playing", s.State, s.StateName)
	}
	if s.TrackID != "a" {
		t.Errorf("TrackID = %q, want a", s.TrackID)
	}
	if s.Degraded {
		t.Error("Degraded = true with both sources present")
	}
	if s.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", s.Duration)
	}
	if h.engine.LiveNodes() != 2 {
		t.Errorf("LiveNodes = %d, want 2", h.engine.LiveNodes())
	}
}

func TestPlayReplacesPreviousSession(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate/2)
	h.loader.add("b", testRate, testRate/2)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play a: %v", err)
	}
	first := h.output.Current()

	liveAtLoad := -1
	h.loader.onVocal = func(id string) {
		if id == "b" {
			liveAtLoad = h.engine.LiveNodes()
		}
	}
	if err := h.ctrl.Play(context.Background(), "b"); err != nil {
		t.Fatalf("Play b: %v", err)
	}

	if liveAtLoad != 0 {
		t.Errorf("LiveNodes while loading b = %d, want 0", liveAtLoad)
	}
	if h.engine.LiveNodes() != 2 {
		t.Errorf("LiveNodes after b = %d, want 2", h.engine.LiveNodes())
	}
	if first.EndReason() != mixer.EndStopped {
		t.Errorf("first graph EndReason = %v, want stopped", first.EndReason())
	}
	if cur := h.output.Current(); cur == nil || cur == first {
		t.Error("output not switched to the new graph")
	}
	if got := h.ctrl.Status().TrackID; got != "b" {
		t.Errorf("TrackID = %q, want b", got)
	}
}

func TestPlayDegradesWithoutInstrumental(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, 0)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	s := h.ctrl.Status()
	if s.State != Playing {
		t.Fatalf("state = %v, want playing", s.State)
	}
	if !s.Degraded {
		t.Error("Degraded = false, want true")
	}
	if n := h.logs.FilterMessage("instrumental unavailable, playing vocal only").Len(); n != 1 {
		t.Errorf("degrade warnings logged = %d, want 1", n)
	}
	if h.engine.LiveNodes() != 1 {
		t.Errorf("LiveNodes = %d, want 1", h.engine.LiveNodes())
	}

	frame := h.output.RenderFrame()
	var nonzero bool
	for _, v := range frame {
		if v != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Error("vocal-only session rendered silence")
	}
}

func TestPlayVocalFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)
	h.loader.vocalErr = fmt.Errorf("decode: %w", apperrors.ErrMalformedAudioData)

	err := h.ctrl.Play(context.Background(), "a")
	if !errors.Is(err, apperrors.ErrMalformedAudioData) {
		t.Fatalf("Play error = %v, want ErrMalformedAudioData", err)
	}
	var se *apperrors.StageError
	if !errors.As(err, &se) || se.Stage != "load_vocal" {
		t.Errorf("error = %v, want load_vocal StageError", err)
	}
	s := h.ctrl.Status()
	if s.State != Idle {
		t.Errorf("state = %v, want idle", s.State)
	}
	if s.LastError == "" {
		t.Error("LastError empty after failure")
	}
	if h.engine.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", h.engine.LiveNodes())
	}
}

func TestPlayUnknownTrack(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.ctrl.Play(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrTrackNotFound) {
		t.Errorf("Play error = %v, want ErrTrackNotFound", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
}

func TestPlayEmptyVocalFails(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.vocals["a"] = audio.NewBuffer(testRate, 1, 0)

	err := h.ctrl.Play(context.Background(), "a")
	if !errors.Is(err, apperrors.ErrPlayback) {
		t.Errorf("Play error = %v, want ErrPlayback", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)
	h.loader.add("b", testRate, testRate)
	gate := make(chan struct{})
	h.loader.gates["a"] = gate

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Play(context.Background(), "a") }()
	waitState(t, h.ctrl, Loading)

	if err := h.ctrl.Play(context.Background(), "b"); err != nil {
		t.Fatalf("Play b: %v", err)
	}
	close(gate)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Play a error = %v, want ErrSuperseded", err)
	}
	if got := h.ctrl.Status().TrackID; got != "b" {
		t.Errorf("TrackID = %q, want b", got)
	}
	if h.engine.LiveNodes() != 2 {
		t.Errorf("LiveNodes = %d, want 2", h.engine.LiveNodes())
	}
}

// --- End of playback ---

func TestNaturalEndReturnsToIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", 1200, 500)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	g := h.output.Current()
render:
	for i := 0; i < 100; i++ {
		h.output.RenderFrame()
		select {
		case <-g.Ended():
			break render
		default:
		}
	}
	waitState(t, h.ctrl, Idle)

	if g.EndReason() != mixer.EndNatural {
		t.Errorf("EndReason = %v, want natural", g.EndReason())
	}
	if h.engine.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", h.engine.LiveNodes())
	}
	if h.output.Current() != nil {
		t.Error("output still attached after natural end")
	}
}

func TestStaleEndIsIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)
	h.loader.add("b", testRate, testRate)

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play a: %v", err)
	}
	first := h.output.Current()
	firstGen := h.ctrl.gen

	if err := h.ctrl.Play(context.Background(), "b"); err != nil {
		t.Fatalf("Play b: %v", err)
	}

	// A late notification from the first session must not touch the second.
	h.ctrl.handleEnded(first, firstGen)

	if h.ctrl.State() != Playing {
		t.Errorf("state = %v, want playing", h.ctrl.State())
	}
	if got := h.ctrl.Status().TrackID; got != "b" {
		t.Errorf("TrackID = %q, want b", got)
	}
	if h.engine.LiveNodes() != 2 {
		t.Errorf("LiveNodes = %d, want 2", h.engine.LiveNodes())
	}
}

// --- Hooks and gains ---

func TestOpenOutputRunsBeforeEverySession(t *testing.T) {
	calls := 0
	h := newHarness(t, Config{OpenOutput: func(context.Context) error { calls++; return nil }})
	h.loader.add("a", testRate, testRate)

	for i := 0; i < 3; i++ {
		if err := h.ctrl.Play(context.Background(), "a"); err != nil {
			t.Fatalf("Play #%d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Errorf("OpenOutput calls = %d, want 3", calls)
	}
}

func TestOpenOutputFailureIsSurfaced(t *testing.T) {
	fail := true
	h := newHarness(t, Config{OpenOutput: func(context.Context) error {
		if fail {
			return errors.New("no ALSA device")
		}
		return nil
	}})
	h.loader.add("a", testRate, testRate)

	err := h.ctrl.Play(context.Background(), "a")
	if !errors.Is(err, apperrors.ErrOutputUnavailable) || !errors.Is(err, apperrors.ErrPlayback) {
		t.Fatalf("Play error = %v, want ErrOutputUnavailable", err)
	}
	st := h.ctrl.Status()
	if st.State != Idle || st.TrackID != "" {
		t.Errorf("status = %+v, want idle with no track", st)
	}
	if st.LastError != "Output device unavailable." {
		t.Errorf("LastError = %q", st.LastError)
	}
	if h.engine.LiveNodes() != 0 {
		t.Errorf("LiveNodes = %d, want 0", h.engine.LiveNodes())
	}

	// The next request retries the device.
	fail = false
	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play after device recovered: %v", err)
	}
	if h.ctrl.State() != Playing || h.ctrl.Status().LastError != "" {
		t.Errorf("status = %+v, want playing without error", h.ctrl.Status())
	}
}

func TestUnrecoverableInstrumentalErrorFailsPlay(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)
	h.loader.instErr = apperrors.ErrTrackNotFound

	err := h.ctrl.Play(context.Background(), "a")
	if !errors.Is(err, apperrors.ErrTrackNotFound) {
		t.Fatalf("Play error = %v, want ErrTrackNotFound", err)
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v, want idle", h.ctrl.State())
	}
}

func TestGainsPersistAcrossSessions(t *testing.T) {
	h := newHarness(t, Config{})
	h.loader.add("a", testRate, testRate)

	if got := h.ctrl.SetVocalGain(3); got != mixer.VocalGainMax {
		t.Errorf("SetVocalGain(3) = %v, want %v", got, mixer.VocalGainMax)
	}
	if got := h.ctrl.SetInstrumentalGain(-1); got != 0 {
		t.Errorf("SetInstrumentalGain(-1) = %v, want 0", got)
	}

	if err := h.ctrl.Play(context.Background(), "a"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	g := h.output.Current()
	if g.VocalGain() != mixer.VocalGainMax {
		t.Errorf("graph VocalGain = %v, want %v", g.VocalGain(), mixer.VocalGainMax)
	}
	if g.InstrumentalGain() != 0 {
		t.Errorf("graph InstrumentalGain = %v, want 0", g.InstrumentalGain())
	}

	h.ctrl.SetInstrumentalGain(0.7)
	if g.InstrumentalGain() != 0.7 {
		t.Errorf("live InstrumentalGain = %v, want 0.7", g.InstrumentalGain())
	}
	s := h.ctrl.Status()
	if s.VocalGain != mixer.VocalGainMax || s.InstrumentalGain != 0.7 {
		t.Errorf("Status gains = %v/%v", s.VocalGain, s.InstrumentalGain)
	}
}
