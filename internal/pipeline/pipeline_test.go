package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/capture"
	"codeberg.org/mutker/vibesd/internal/director"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/metrics"
	"codeberg.org/mutker/vibesd/internal/overmind"
	"codeberg.org/mutker/vibesd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{HeartbeatInterval: time.Millisecond}
}

func offlineDirector() *director.Director {
	cfg := director.DefaultConfig()
	cfg.Host = "http://127.0.0.1:1"
	cfg.RetryBase = time.Millisecond
	return director.New(cfg, nil, logger.Nop())
}

func start(t *testing.T, p *Pipeline) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})
}

func next(t *testing.T, c <-chan overmind.GlobalState) overmind.GlobalState {
	t.Helper()

	select {
	case s, ok := <-c:
		require.True(t, ok, "state bus closed")
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}
	return overmind.GlobalState{}
}

func sineS16(freq float64, rate, frames int) []byte {
	var buf bytes.Buffer
	for i := 0; i < frames; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * 32000)
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func TestHeartbeatWithoutSource(t *testing.T) {
	p := New(testConfig(), nil, offlineDirector(), telemetry.Static{}, nil, logger.Nop())

	assert.Equal(t, overmind.NoAudioDevice, p.Latest().AudioMeta)

	sub, err := p.States().Subscribe("test")
	require.NoError(t, err)
	start(t, p)

	s := next(t, sub.C())
	assert.Equal(t, overmind.NoAudioDevice, s.AudioMeta)
	assert.Equal(t, overmind.Chill, s.Mood)
	assert.Zero(t, s.LowEnergy)
	assert.Equal(t, "BOOT_SEQUENCE", s.AITheme)
	assert.Equal(t, "INITIALIZING", s.AIDirective)
}

func TestCaptureFeedsClassifier(t *testing.T) {
	const rate = 8000
	data := sineS16(100, rate, 256*8)

	cfg := capture.Config{SampleRate: rate, Channels: 1, Format: audio.FormatS16LE, BlockSize: 256}
	src := capture.NewReaderSource(bytes.NewReader(data), cfg, "tone", false, logger.Nop())

	p := New(testConfig(), src, offlineDirector(), telemetry.Static{}, nil, logger.Nop())
	sub, err := p.States().Subscribe("test")
	require.NoError(t, err)
	start(t, p)

	s := next(t, sub.C())
	assert.Equal(t, "tone", s.AudioMeta.DeviceName)
	assert.Equal(t, uint32(rate), s.AudioMeta.SampleRate)
	assert.Equal(t, uint16(1), s.AudioMeta.Channels)
	assert.Positive(t, s.LowEnergy)
	assert.Greater(t, s.LowEnergy, s.HighEnergy)

	// the input is finite; once drained the pipeline falls back to heartbeat
	require.Eventually(t, func() bool {
		return p.Latest().AudioMeta == overmind.NoAudioDevice
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBoredomIsInjectedIntoSnapshots(t *testing.T) {
	dir := offlineDirector()
	p := New(testConfig(), nil, dir, telemetry.Static{}, nil, logger.Nop())
	start(t, p)

	require.True(t, dir.UpdateBoredom(0.95))

	require.Eventually(t, func() bool {
		s := p.Latest()
		return s.AIDirective == director.ChaosDirective &&
			s.AITheme == director.ChaosTheme &&
			s.AIPrimaryColor == director.ChaosPrimary
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConsultLoopAppliesModelAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"response": `{"theme":"QUIET_ORBIT","primary_color":"#101010","secondary_color":"#202020","directive":"IDLE"}`,
		})
	}))
	defer srv.Close()

	dcfg := director.DefaultConfig()
	dcfg.Host = srv.URL
	dir := director.New(dcfg, nil, logger.Nop())

	cfg := testConfig()
	cfg.ConsultInterval = 5 * time.Millisecond
	p := New(cfg, nil, dir, telemetry.Static{}, nil, logger.Nop())
	start(t, p)

	require.Eventually(t, func() bool {
		return p.Latest().AITheme == "QUIET_ORBIT"
	}, 2*time.Second, 5*time.Millisecond)

	m := dir.Metrics()
	assert.Positive(t, m.TotalRequests)
	assert.Zero(t, m.ErrorCount)
}

type memRecorder struct {
	mu      sync.Mutex
	samples []*metrics.Sample
}

func (r *memRecorder) Record(_ context.Context, s *metrics.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *memRecorder) Close() error  { return nil }
func (r *memRecorder) Enabled() bool { return true }

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func TestRecordLoopPersistsSamples(t *testing.T) {
	rec := &memRecorder{}

	cfg := testConfig()
	cfg.MetricsInterval = 5 * time.Millisecond
	p := New(cfg, nil, offlineDirector(), telemetry.Static{}, rec, logger.Nop())
	start(t, p)

	require.Eventually(t, func() bool { return rec.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	s := rec.samples[0]
	rec.mu.Unlock()
	assert.Equal(t, "STABLE", s.Vibe.Trend)
	assert.NotEmpty(t, s.Vibe.Theme)
}

func TestRunClosesStateBus(t *testing.T) {
	p := New(testConfig(), nil, offlineDirector(), telemetry.Static{}, nil, logger.Nop())
	sub, err := p.States().Subscribe("test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	next(t, sub.C())
	cancel()
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C():
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
