package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/undertone-analyzer/pkg/detection"
	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

var quiet = log.New(io.Discard, "", 0)

// fakeFaces returns scripted detections. Calls listed in blockCalls (1-based)
// block until their context ends.
type fakeFaces struct {
	detections []types.Detection
	err        error
	blockCalls map[int32]bool
	calls      atomic.Int32
	entered    chan int32
}

func (f *fakeFaces) Initialize(ctx context.Context) error { return nil }

func (f *fakeFaces) DetectFaces(ctx context.Context, img image.Image) ([]types.Detection, error) {
	n := f.calls.Add(1)
	if f.entered != nil {
		f.entered <- n
	}
	if f.blockCalls[n] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.detections, f.err
}

// recorder collects observer notifications
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) observe(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// createTestImage creates a uniform test image
func createTestImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t testing.TB, img image.Image) types.ImageSource {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return types.ImageSource{Data: buf.Bytes(), MediaType: "image/png", Name: "test.png"}
}

func newStages(capability *fakeFaces) Stages {
	stages := DefaultStages(nil)
	stages.Loader = loader.NewWithConfig(loader.Config{Logger: quiet})
	if capability != nil {
		cfg := detection.DefaultConfig()
		cfg.Timeout = 0
		cfg.Logger = quiet
		stages.Detector = detection.NewDetectorWithConfig(capability, cfg)
	}
	return stages
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAnalyzeWarmWithoutFace(t *testing.T) {
	rec := &recorder{}
	stages := newStages(nil)
	session := NewSessionWithConfig(stages, Config{Observer: rec.observe, Logger: quiet})

	src := encodePNG(t, createTestImage(100, 100, color.NRGBA{200, 100, 50, 255}))
	outcome, err := session.Analyze(context.Background(), src)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !outcome.OK() {
		t.Fatalf("Expected success, got %v", outcome.Err)
	}
	if outcome.Label != types.Warm {
		t.Errorf("Expected warm, got %s", outcome.Label)
	}
	if outcome.Sample != (types.ColorSample{R: 200, G: 100, B: 50}) {
		t.Errorf("Unexpected sample %+v", outcome.Sample)
	}
	if outcome.Region != (types.SamplingRegion{X: 0, Y: 0, Width: 100, Height: 100}) {
		t.Errorf("Expected full-image region, got %+v", outcome.Region)
	}
	if outcome.Face != nil {
		t.Errorf("Expected no face, got %+v", outcome.Face)
	}

	want := []State{Loading, Detecting, Sampling, Done}
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("Expected transitions %v, got %v", want, got)
	}
	if session.State() != Done {
		t.Errorf("Expected Done, got %s", session.State())
	}
	if last, ok := session.Last(); !ok || last.Label != types.Warm {
		t.Errorf("Expected Last to hold the warm outcome, got %+v (%v)", last, ok)
	}
	if n := stages.Loader.Live(); n != 0 {
		t.Errorf("Expected raster released, %d live", n)
	}
}

func TestAnalyzeUsesFaceRegion(t *testing.T) {
	// bluish face region inside a warm background
	img := createTestImage(400, 300, color.NRGBA{220, 120, 80, 255})
	for y := 60; y < 170; y++ {
		for x := 80; x < 180; x++ {
			img.SetNRGBA(x, y, color.NRGBA{100, 120, 200, 255})
		}
	}

	capability := &fakeFaces{
		detections: []types.Detection{{Box: types.BoundingBox{X: 100, Y: 80, Width: 60, Height: 70}, Score: 0.9}},
	}
	session := NewSessionWithConfig(newStages(capability), Config{Logger: quiet})

	outcome, err := session.Analyze(context.Background(), encodePNG(t, img))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if outcome.Face == nil || *outcome.Face != (types.BoundingBox{X: 100, Y: 80, Width: 60, Height: 70}) {
		t.Errorf("Unexpected face %+v", outcome.Face)
	}
	if outcome.Region != (types.SamplingRegion{X: 80, Y: 60, Width: 100, Height: 110}) {
		t.Errorf("Expected padded region, got %+v", outcome.Region)
	}
	if outcome.Label != types.Cool {
		t.Errorf("Expected cool from the face region, got %s (sample %+v)", outcome.Label, outcome.Sample)
	}
}

func TestAnalyzeNonImage(t *testing.T) {
	rec := &recorder{}
	stages := newStages(nil)
	session := NewSessionWithConfig(stages, Config{Observer: rec.observe, Logger: quiet})

	outcome, err := session.Analyze(context.Background(), types.ImageSource{
		Data:      []byte("definitely not an image"),
		MediaType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Pipeline failures belong in the outcome, got error %v", err)
	}

	if outcome.OK() {
		t.Fatal("Expected failure outcome")
	}
	if !errors.Is(outcome.Err, types.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", outcome.Err)
	}
	if outcome.Kind() != types.KindDecode {
		t.Errorf("Expected kind %s, got %s", types.KindDecode, outcome.Kind())
	}

	want := []State{Loading, Done}
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("Expected transitions %v, got %v", want, got)
	}
}

func TestAnalyzeDetectorErrorFallsBack(t *testing.T) {
	capability := &fakeFaces{err: errors.New("backend down")}
	session := NewSessionWithConfig(newStages(capability), Config{Logger: quiet})

	src := encodePNG(t, createTestImage(50, 50, color.NRGBA{90, 110, 160, 255}))
	outcome, err := session.Analyze(context.Background(), src)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !outcome.OK() || outcome.Label != types.Cool {
		t.Errorf("Expected cool success, got %+v", outcome)
	}
	if outcome.Region != (types.SamplingRegion{Width: 50, Height: 50}) {
		t.Errorf("Expected full-image region, got %+v", outcome.Region)
	}
}

func TestAnalyzeSupersession(t *testing.T) {
	capability := &fakeFaces{
		detections: []types.Detection{{Box: types.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}, Score: 0.9}},
		blockCalls: map[int32]bool{1: true},
		entered:    make(chan int32, 2),
	}
	rec := &recorder{}
	stages := newStages(capability)
	session := NewSessionWithConfig(stages, Config{Observer: rec.observe, Logger: quiet})

	type result struct {
		outcome types.Outcome
		err     error
	}
	warm := encodePNG(t, createTestImage(60, 60, color.NRGBA{200, 100, 50, 255}))
	first := make(chan result, 1)
	go func() {
		o, err := session.Analyze(context.Background(), warm)
		first <- result{o, err}
	}()

	select {
	case <-capability.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("First analysis never reached detection")
	}

	second, err := session.Analyze(context.Background(), encodePNG(t, createTestImage(60, 60, color.NRGBA{90, 110, 160, 255})))
	if err != nil {
		t.Fatalf("Second analysis failed: %v", err)
	}
	if second.Label != types.Cool {
		t.Errorf("Expected second analysis to be cool, got %s", second.Label)
	}

	var r result
	select {
	case r = <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("First analysis never returned")
	}
	if !errors.Is(r.err, types.ErrSuperseded) {
		t.Errorf("Expected ErrSuperseded, got %v", r.err)
	}
	if r.outcome.Label != "" {
		t.Errorf("Superseded run must not surface an outcome, got %+v", r.outcome)
	}

	last, ok := session.Last()
	if !ok || last.Label != types.Cool {
		t.Errorf("Expected Last to be the second outcome, got %+v", last)
	}

	want := []State{Loading, Detecting, Loading, Detecting, Sampling, Done}
	if got := rec.get(); !equalStates(got, want) {
		t.Errorf("Expected transitions %v, got %v", want, got)
	}
	if n := stages.Loader.Live(); n != 0 {
		t.Errorf("Expected all rasters released, %d live", n)
	}
	if g := session.Generation(); g != 2 {
		t.Errorf("Expected generation 2, got %d", g)
	}
}

func TestAnalyzeCallerCancellation(t *testing.T) {
	capability := &fakeFaces{
		blockCalls: map[int32]bool{1: true},
		entered:    make(chan int32, 1),
	}
	rec := &recorder{}
	stages := newStages(capability)
	session := NewSessionWithConfig(stages, Config{Observer: rec.observe, Logger: quiet})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-capability.entered
		cancel()
	}()

	_, err := session.Analyze(ctx, encodePNG(t, createTestImage(40, 40, color.NRGBA{200, 100, 50, 255})))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	for _, s := range rec.get() {
		if s == Done || s == Sampling {
			t.Errorf("Observer must not see %s after cancellation", s)
		}
	}
	if _, ok := session.Last(); ok {
		t.Error("Cancelled run must not be recorded")
	}
	if session.State() != Idle {
		t.Errorf("Expected Idle after cancellation, got %s", session.State())
	}
	if n := stages.Loader.Live(); n != 0 {
		t.Errorf("Expected raster released, %d live", n)
	}
}

func TestSessionCancel(t *testing.T) {
	capability := &fakeFaces{
		blockCalls: map[int32]bool{1: true},
		entered:    make(chan int32, 1),
	}
	session := NewSessionWithConfig(newStages(capability), Config{Logger: quiet})

	go func() {
		<-capability.entered
		session.Cancel()
	}()

	_, err := session.Analyze(context.Background(), encodePNG(t, createTestImage(40, 40, color.NRGBA{1, 2, 3, 255})))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if session.State() != Idle {
		t.Errorf("Expected Idle after Cancel, got %s", session.State())
	}

	// idle session
	session.Cancel()
}

func TestAnalyzePalette(t *testing.T) {
	session := NewSessionWithConfig(newStages(nil), Config{Palette: true, Logger: quiet})

	img := createTestImage(32, 32, color.NRGBA{200, 100, 50, 255})
	for y := 0; y < 32; y++ {
		for x := 24; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{40, 60, 200, 255})
		}
	}

	outcome, err := session.Analyze(context.Background(), encodePNG(t, img))
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(outcome.Palette) == 0 {
		t.Error("Expected a palette")
	}
}

func TestStateString(t *testing.T) {
	names := map[State]string{
		Idle:      "idle",
		Loading:   "loading",
		Detecting: "detecting",
		Sampling:  "sampling",
		Done:      "done",
	}
	for s, name := range names {
		if s.String() != name {
			t.Errorf("Expected %s, got %s", name, s.String())
		}
	}
}

func TestNewSessionDefaults(t *testing.T) {
	session := NewSession(Stages{})
	if session.ID() == "" {
		t.Error("Expected a session id")
	}
	if session.State() != Idle {
		t.Errorf("Expected Idle, got %s", session.State())
	}
	if _, ok := session.Last(); ok {
		t.Error("Expected no outcome yet")
	}
}

func BenchmarkAnalyze(b *testing.B) {
	session := NewSessionWithConfig(newStages(nil), Config{Logger: quiet})
	src := encodePNG(b, createTestImage(640, 480, color.NRGBA{200, 150, 120, 255}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session.Analyze(context.Background(), src)
	}
}
