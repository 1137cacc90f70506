package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patchmix/patchmix/internal/composite"
	"github.com/patchmix/patchmix/internal/engine"
	"github.com/patchmix/patchmix/internal/gifplay"
)

func startPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New(Options{
		Width: 16, Height: 9, FPS: 120,
		PreviewWidth: 16, PreviewHeight: 9, PreviewFPS: 60,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// inspect runs fn on the loop goroutine so tests can read loop-owned
// state without racing the tick.
func inspect(t *testing.T, p *Pipeline, fn func()) {
	t.Helper()
	if err := p.do(testCtx(t), fn); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func speedOf(v float64) *float64 { return &v }

func writePipelineGIF(t *testing.T) string {
	t.Helper()
	pal := color.Palette{color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255}}
	g := &gif.GIF{}
	for i := 0; i < 3; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
		for pi := range img.Pix {
			img.Pix[pi] = uint8(i % 2)
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 1)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "loop.gif")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunBothIsolatesFailures(t *testing.T) {
	p := startPipeline(t)

	result, err := p.RunBoth(testCtx(t), RunRequest{
		PatchA: `solid(0, 1, 0, 1):out(o0)`,
		PatchB: `this is not valid ++`,
	})
	if err != nil {
		t.Fatalf("runBoth: %v", err)
	}

	if !result.A.Success {
		t.Errorf("A should succeed: %+v", result.A.Error)
	}
	if result.B.Success {
		t.Error("B should fail")
	}
	if result.B.Error == nil || result.B.Error.Message == "" {
		t.Error("B's failure needs a non-empty message")
	}

	// A's surface shows A's output despite B's failure.
	var img *image.RGBA
	inspect(t, p, func() { img = p.instA.Output(0).Snapshot() })
	if img.Pix[img.PixOffset(4, 4)+1] != 255 {
		t.Error("A's surface should show green")
	}
}

func TestScenarioSyntaxErrorWithAddComposite(t *testing.T) {
	p := startPipeline(t)

	result, err := p.RunBoth(testCtx(t), RunRequest{
		PatchA:        "out()",
		PatchB:        "syntax +++ error",
		CompositeMode: "add",
	})
	if err != nil {
		t.Fatalf("runBoth: %v", err)
	}

	if !result.A.Success {
		t.Errorf("A should succeed: %+v", result.A.Error)
	}
	if result.B.Success || result.B.Error == nil || result.B.Error.Message == "" {
		t.Error("B should fail with a message")
	}

	// The composite still materialized against B's blank surface.
	var mode string
	inspect(t, p, func() { mode = p.comp.Materialized() })
	if mode != "add" {
		t.Errorf("materialized mode = %q, want add", mode)
	}
}

func TestCompositeGatedUntilFirstRun(t *testing.T) {
	p := startPipeline(t)

	if err := p.SetComposite(testCtx(t), "add", nil); err != nil {
		t.Fatalf("setComposite: %v", err)
	}

	var mode string
	inspect(t, p, func() { mode = p.comp.Materialized() })
	if mode != "" {
		t.Errorf("composite materialized %q before any run", mode)
	}

	// First run unlocks compositing and applies the remembered mode.
	if _, err := p.RunBoth(testCtx(t), RunRequest{PatchA: "out()", PatchB: "out()"}); err != nil {
		t.Fatalf("runBoth: %v", err)
	}
	inspect(t, p, func() { mode = p.comp.Materialized() })
	if mode != "add" {
		t.Errorf("materialized mode = %q, want remembered add", mode)
	}
}

func TestMissingModeUsesDefault(t *testing.T) {
	p := startPipeline(t)

	if _, err := p.RunBoth(testCtx(t), RunRequest{PatchA: "out()", PatchB: "out()"}); err != nil {
		t.Fatalf("runBoth: %v", err)
	}

	var mode string
	inspect(t, p, func() { mode = p.comp.Materialized() })
	if mode != composite.DefaultMode {
		t.Errorf("materialized mode = %q, want %q", mode, composite.DefaultMode)
	}
}

func TestMissingModeKeepsSessionMode(t *testing.T) {
	p := startPipeline(t)

	if _, err := p.RunBoth(testCtx(t), RunRequest{
		PatchA: "out()", PatchB: "out()", CompositeMode: "add",
	}); err != nil {
		t.Fatal(err)
	}

	// A later run without a mode keeps the session's selection rather
	// than snapping back to the default.
	if _, err := p.RunBoth(testCtx(t), RunRequest{PatchA: "out()", PatchB: "out()"}); err != nil {
		t.Fatal(err)
	}

	var mode string
	inspect(t, p, func() { mode = p.comp.Materialized() })
	if mode != "add" {
		t.Errorf("materialized mode = %q, want session-sticky add", mode)
	}
}

func TestRunCarriesCompositeParameters(t *testing.T) {
	p := startPipeline(t)

	_, err := p.RunBoth(testCtx(t), RunRequest{
		PatchA:              "out()",
		PatchB:              "out()",
		CompositeMode:       "blend",
		CompositeParameters: map[string]float64{"mix": 0.2},
	})
	if err != nil {
		t.Fatalf("runBoth: %v", err)
	}

	var params map[string]float64
	inspect(t, p, func() { params = p.comp.Params() })
	if params["mix"] != 0.2 {
		t.Errorf("mix = %v, want 0.2", params["mix"])
	}
}

func TestRunIDsAreMonotonic(t *testing.T) {
	p := startPipeline(t)

	r1, err := p.RunBoth(testCtx(t), RunRequest{PatchA: "out()", PatchB: "out()"})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := p.RunBoth(testCtx(t), RunRequest{PatchA: "out()", PatchB: "out()"})
	if err != nil {
		t.Fatal(err)
	}
	if r1.RunID != 1 || r2.RunID != 2 {
		t.Errorf("run ids = %d, %d, want 1, 2", r1.RunID, r2.RunID)
	}
}

func TestAssignSourceCreatesIndependentPlayers(t *testing.T) {
	p := startPipeline(t)
	path := writePipelineGIF(t)

	err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s0", MediaURL: path, MediaKind: "animatedImage", PlaybackSpeed: speedOf(1),
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}

	var pa, pb *gifplay.Player
	inspect(t, p, func() {
		if s, ok := p.instA.SchedulerFor(0); ok {
			pa = s.(*gifplay.Player)
		}
		if s, ok := p.instB.SchedulerFor(0); ok {
			pb = s.(*gifplay.Player)
		}
	})
	if pa == nil || pb == nil {
		t.Fatal("both instances should hold a scheduler for s0")
	}
	if pa == pb {
		t.Fatal("the two instances must not share one player")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pa.State() == gifplay.StatePlaying && pb.State() == gifplay.StatePlaying {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if pa.State() != gifplay.StatePlaying || pb.State() != gifplay.StatePlaying {
		t.Fatalf("players not playing: %v / %v", pa.State(), pb.State())
	}
}

func TestAssignWithZeroSpeedStartsPaused(t *testing.T) {
	p := startPipeline(t)
	path := writePipelineGIF(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s0", MediaURL: path, MediaKind: "animatedImage", PlaybackSpeed: speedOf(0),
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	var pa *gifplay.Player
	inspect(t, p, func() {
		s, _ := p.instA.SchedulerFor(0)
		pa, _ = s.(*gifplay.Player)
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pa.State() != gifplay.StatePaused {
		time.Sleep(5 * time.Millisecond)
	}
	if pa.State() != gifplay.StatePaused {
		t.Fatalf("state = %v, want paused", pa.State())
	}
	if pa.FrameIndex() != 0 {
		t.Errorf("frame index = %d, want 0 while paused on assign", pa.FrameIndex())
	}

	// A later speed message starts playback from the first frame.
	if err := p.SetSlotSpeed(testCtx(t), "s0", 1); err != nil {
		t.Fatal(err)
	}
	if pa.State() != gifplay.StatePlaying {
		t.Errorf("state = %v, want playing after speed update", pa.State())
	}
}

func TestAssignWithOmittedSpeedPlays(t *testing.T) {
	p := startPipeline(t)
	path := writePipelineGIF(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s2", MediaURL: path, MediaKind: "animatedImage",
	}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	var pa *gifplay.Player
	inspect(t, p, func() {
		s, _ := p.instA.SchedulerFor(2)
		pa, _ = s.(*gifplay.Player)
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pa.State() != gifplay.StatePlaying {
		time.Sleep(5 * time.Millisecond)
	}
	if pa.State() != gifplay.StatePlaying {
		t.Fatalf("state = %v, want playing with omitted speed", pa.State())
	}
}

func TestAssignRejectsNegativeSpeed(t *testing.T) {
	p := startPipeline(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s0", MediaURL: "x", MediaKind: "animatedImage", PlaybackSpeed: speedOf(-1),
	}); err == nil {
		t.Error("negative speed should be rejected")
	}
}

func TestClearSourceTearsDown(t *testing.T) {
	p := startPipeline(t)
	path := writePipelineGIF(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s1", MediaURL: path, MediaKind: "animatedImage", PlaybackSpeed: speedOf(1),
	}); err != nil {
		t.Fatal(err)
	}
	if err := p.ClearSource(testCtx(t), "s1"); err != nil {
		t.Fatal(err)
	}

	inspect(t, p, func() {
		if _, ok := p.instA.SchedulerFor(1); ok {
			t.Error("A's scheduler should be gone")
		}
		if p.instA.Slot(1).Kind() != engine.MediaNone {
			t.Error("A's slot binding should be cleared")
		}
	})
}

func TestSlotSpeedPausesActivePlayers(t *testing.T) {
	p := startPipeline(t)
	path := writePipelineGIF(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s0", MediaURL: path, MediaKind: "animatedImage", PlaybackSpeed: speedOf(1),
	}); err != nil {
		t.Fatal(err)
	}

	var pa *gifplay.Player
	inspect(t, p, func() {
		s, _ := p.instA.SchedulerFor(0)
		pa, _ = s.(*gifplay.Player)
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pa.State() != gifplay.StatePlaying {
		time.Sleep(5 * time.Millisecond)
	}

	if err := p.SetSlotSpeed(testCtx(t), "s0", 0); err != nil {
		t.Fatal(err)
	}
	if pa.State() != gifplay.StatePaused {
		t.Errorf("state = %v, want paused", pa.State())
	}
}

func TestBadSlotAndKindRejected(t *testing.T) {
	p := startPipeline(t)

	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s9", MediaURL: "x", MediaKind: "animatedImage",
	}); err == nil {
		t.Error("bad slot should be rejected")
	}
	if err := p.AssignSource(testCtx(t), SourceRequest{
		Slot: "s0", MediaURL: "x", MediaKind: "hologram",
	}); err == nil {
		t.Error("bad kind should be rejected")
	}
	if err := p.ClearSource(testCtx(t), "nope"); err == nil {
		t.Error("bad slot should be rejected")
	}
}
