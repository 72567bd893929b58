package export

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
	"github.com/studiolapse/studiolapse-agent/internal/mediatool"
)

// fakeTool is a scripted media tool. probeLogs maps a path to its log; a
// path listed in probeErrs fails to run.
type fakeTool struct {
	mu        sync.Mutex
	probeLogs map[string]string
	probeErrs map[string]error
	probed    []string

	encodeSession mediatool.Session
	encodeErr     error
	encodeArgs    []string
	writeOutput   bool
	encodeGate    chan struct{}

	probeCalls  atomic.Int32
	encodeCalls atomic.Int32
}

func (f *fakeTool) Probe(ctx context.Context, path string) (mediatool.Session, error) {
	f.probeCalls.Add(1)
	f.mu.Lock()
	f.probed = append(f.probed, path)
	f.mu.Unlock()

	if err, ok := f.probeErrs[path]; ok {
		// a killed probe keeps whatever it logged before it stopped
		return mediatool.Session{ReturnCode: mediatool.ReturnCode{Value: -1, Cancelled: true}, Log: f.probeLogs[path]}, err
	}
	return mediatool.Session{
		Args:       []string{"-hide_banner", "-i", path, "-f", "null", "-"},
		ReturnCode: mediatool.ReturnCode{Value: 0},
		Log:        f.probeLogs[path],
	}, nil
}

func (f *fakeTool) Encode(ctx context.Context, args []string) (mediatool.Session, error) {
	f.encodeCalls.Add(1)
	f.mu.Lock()
	f.encodeArgs = args
	f.mu.Unlock()

	if f.encodeGate != nil {
		<-f.encodeGate
	}
	if f.writeOutput && len(args) > 0 {
		if err := os.WriteFile(args[len(args)-1], []byte("timelapse"), 0644); err != nil {
			return mediatool.Session{ReturnCode: mediatool.ReturnCode{Value: -1}}, err
		}
	}
	s := f.encodeSession
	s.Args = args
	return s, f.encodeErr
}

func durationLog(ts string) string {
	return "Input #0, mov,mp4,m4a, from 'clip.mov':\n  Duration: " + ts + ", start: 0.000000, bitrate: 1200 kb/s\n"
}

func newTestProber(tool mediatool.Tool) (*Prober, kvstore.Store) {
	kv := kvstore.NewMemoryStore()
	return NewProber(tool, NewDurationCache(kv, nil), nil), kv
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		log    string
		want   float64
		wantOK bool
	}{
		{durationLog("00:00:12.50"), 12.5, true},
		{durationLog("01:02:03.50"), 3723.5, true},
		{"Duration:00:01:00.00", 60, true},
		{"Duration: N/A", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseDuration(tt.log)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseDuration(%q) = (%v, %v), want (%v, %v)", tt.log, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"file:///var/clips/a.mov", "/var/clips/a.mov"},
		{"/var/clips/a.mov", "/var/clips/a.mov"},
		{"content://media/123", "media/123"},
		{"relative/a.mov", "relative/a.mov"},
		{"/odd/path://x", "/odd/path://x"},
	}
	for _, tt := range tests {
		if got := LocalPath(tt.in); got != tt.want {
			t.Errorf("LocalPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProber_CachesDuration(t *testing.T) {
	tool := &fakeTool{probeLogs: map[string]string{"file:///c/a.mov": durationLog("00:00:30.00")}}
	p, kv := newTestProber(tool)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := p.ProbeDuration(ctx, "file:///c/a.mov")
		if err != nil {
			t.Fatalf("ProbeDuration() error = %v", err)
		}
		if d != 30 {
			t.Errorf("ProbeDuration() = %v, want 30", d)
		}
	}
	if got := tool.probeCalls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1", got)
	}

	var stored map[string]float64
	if _, err := kvstore.GetJSON(ctx, kv, kvstore.KeyDurationCache, &stored); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if stored["file:///c/a.mov"] != 30 {
		t.Errorf("persisted cache = %v", stored)
	}
}

func TestProber_CacheSurvivesReload(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	if err := kvstore.SetJSON(ctx, kv, kvstore.KeyDurationCache, map[string]float64{"clip": 7.5}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	tool := &fakeTool{}
	p := NewProber(tool, NewDurationCache(kv, nil), nil)
	d, err := p.ProbeDuration(ctx, "clip")
	if err != nil || d != 7.5 {
		t.Errorf("ProbeDuration() = (%v, %v), want (7.5, nil)", d, err)
	}
	if tool.probeCalls.Load() != 0 {
		t.Error("cached duration should not invoke the tool")
	}
}

func TestProber_NoMatchReturnsZeroUncached(t *testing.T) {
	tool := &fakeTool{probeLogs: map[string]string{"clip": "garbage output"}}
	p, _ := newTestProber(tool)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := p.ProbeDuration(ctx, "clip")
		if err != nil || d != 0 {
			t.Errorf("ProbeDuration() = (%v, %v), want (0, nil)", d, err)
		}
	}
	if got := tool.probeCalls.Load(); got != 2 {
		t.Errorf("probe calls = %d, want 2", got)
	}
}

func TestProber_RetriesWithLocalPath(t *testing.T) {
	tool := &fakeTool{
		probeErrs: map[string]error{"file:///c/a.mov": errors.New("no such protocol")},
		probeLogs: map[string]string{"/c/a.mov": durationLog("00:00:05.25")},
	}
	p, _ := newTestProber(tool)

	d, err := p.ProbeDuration(context.Background(), "file:///c/a.mov")
	if err != nil {
		t.Fatalf("ProbeDuration() error = %v", err)
	}
	if d != 5.25 {
		t.Errorf("ProbeDuration() = %v, want 5.25", d)
	}
	if len(tool.probed) != 2 || tool.probed[1] != "/c/a.mov" {
		t.Errorf("probed = %v, want retry with local path", tool.probed)
	}
}

func TestProber_SecondFailure(t *testing.T) {
	boom := errors.New("binary missing")
	tool := &fakeTool{probeErrs: map[string]error{
		"file:///c/a.mov": boom,
		"/c/a.mov":        boom,
	}}
	p, _ := newTestProber(tool)

	d, err := p.ProbeDuration(context.Background(), "file:///c/a.mov")
	if d != 0 {
		t.Errorf("ProbeDuration() = %v, want 0", d)
	}
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("error = %v, want *ProbeError", err)
	}
	if probeErr.ClipRef != "file:///c/a.mov" || !errors.Is(err, boom) {
		t.Errorf("ProbeError = %+v", probeErr)
	}
	if got := tool.probeCalls.Load(); got != 2 {
		t.Errorf("probe calls = %d, want exactly 2", got)
	}
}

func TestProber_TimedOutProbeKeepsDuration(t *testing.T) {
	timeout := errors.New("ffmpeg cancelled: context deadline exceeded")
	tool := &fakeTool{
		probeErrs: map[string]error{"file:///c/long.mov": timeout},
		probeLogs: map[string]string{"file:///c/long.mov": durationLog("01:30:00.00")},
	}
	p, kv := newTestProber(tool)
	ctx := context.Background()

	d, err := p.ProbeDuration(ctx, "file:///c/long.mov")
	if err != nil {
		t.Fatalf("ProbeDuration() error = %v", err)
	}
	if d != 5400 {
		t.Errorf("ProbeDuration() = %v, want 5400", d)
	}
	if got := tool.probeCalls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1 (no retry when the duration was logged)", got)
	}

	if d, _ := NewProber(tool, NewDurationCache(kv, nil), nil).ProbeDuration(ctx, "file:///c/long.mov"); d != 5400 {
		t.Errorf("cached duration = %v, want 5400", d)
	}
	if got := tool.probeCalls.Load(); got != 1 {
		t.Errorf("probe calls after cache hit = %d, want 1", got)
	}
}

func TestProber_TimedOutRetryKeepsDuration(t *testing.T) {
	timeout := errors.New("ffmpeg cancelled: context deadline exceeded")
	tool := &fakeTool{
		probeErrs: map[string]error{
			"file:///c/long.mov": errors.New("no such protocol"),
			"/c/long.mov":        timeout,
		},
		probeLogs: map[string]string{"/c/long.mov": durationLog("00:45:00.00")},
	}
	p, _ := newTestProber(tool)

	d, err := p.ProbeDuration(context.Background(), "file:///c/long.mov")
	if err != nil || d != 2700 {
		t.Errorf("ProbeDuration() = (%v, %v), want (2700, nil)", d, err)
	}
}
