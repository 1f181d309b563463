// Package pipeline drives extraction, classification and enrichment and
// publishes the resulting snapshots.
package pipeline

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/bus"
	"codeberg.org/mutker/vibesd/internal/capture"
	"codeberg.org/mutker/vibesd/internal/director"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/metrics"
	"codeberg.org/mutker/vibesd/internal/overmind"
	"codeberg.org/mutker/vibesd/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHeartbeat     = 33 * time.Millisecond
	defaultConsultPeriod = 5 * time.Second
	defaultProbeTries    = 60
	defaultProbeInterval = time.Second
	blockQueue           = 4
)

type Config struct {
	HeartbeatInterval time.Duration
	// ConsultInterval <= 0 disables the consult loop.
	ConsultInterval time.Duration
	// MetricsInterval <= 0 disables metric persistence.
	MetricsInterval time.Duration
	BusBuffer       int
	// ProbeTries <= 0 skips the startup readiness probe.
	ProbeTries    int
	ProbeInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: defaultHeartbeat,
		ConsultInterval:   defaultConsultPeriod,
		BusBuffer:         bus.DefaultBuffer,
		ProbeTries:        defaultProbeTries,
		ProbeInterval:     defaultProbeInterval,
	}
}

type Pipeline struct {
	cfg       Config
	source    capture.Source
	extractor *audio.Extractor
	overmind  *overmind.Overmind
	director  *director.Director
	recorder  metrics.Recorder
	log       logger.Logger

	features *bus.Bus[audio.Features]
	states   *bus.Bus[overmind.GlobalState]

	mu     sync.RWMutex
	latest overmind.GlobalState
}

// New assembles a pipeline. A nil source runs the classifier on a zero
// heartbeat and reports NO_AUDIO_DEVICE.
func New(
	cfg Config,
	source capture.Source,
	dir *director.Director,
	stats telemetry.Reader,
	recorder metrics.Recorder,
	log logger.Logger,
) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}

	p := &Pipeline{
		cfg:      cfg,
		director: dir,
		recorder: recorder,
		log:      log,
		features: bus.New[audio.Features](cfg.BusBuffer),
		states:   bus.New[overmind.GlobalState](cfg.BusBuffer),
	}

	meta := overmind.NoAudioDevice
	if source != nil {
		m := source.Metadata()
		ext, err := audio.NewExtractor(m.Format, m.SampleRate)
		if err != nil {
			var coded errors.Error
			if errors.As(err, &coded) {
				log.ErrorWithCode(coded).Msg("Capture format unsupported, running on heartbeat")
			} else {
				log.Error().Err(err).Msg("Capture format unsupported, running on heartbeat")
			}
		} else {
			p.source = source
			p.extractor = ext
			meta = overmind.AudioMetadata{
				DeviceName: m.DeviceName,
				SampleRate: uint32(m.SampleRate),
				Channels:   uint16(m.Channels),
			}
		}
	}

	p.overmind = overmind.New(meta, stats, log.With("overmind"))
	p.latest = overmind.DefaultState()
	p.latest.AudioMeta = meta

	return p
}

// States is the snapshot bus. Subscribers see every snapshot in order,
// with gaps if they fall behind.
func (p *Pipeline) States() *bus.Bus[overmind.GlobalState] {
	return p.states
}

func (p *Pipeline) Director() *director.Director {
	return p.director
}

// Latest returns the most recently published snapshot.
func (p *Pipeline) Latest() overmind.GlobalState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run blocks until ctx is done. Both buses are closed on return.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.states.Close()
	defer p.features.Close()

	g, ctx := errgroup.WithContext(ctx)

	var (
		featureC    <-chan audio.Features
		captureDone chan struct{}
	)

	if p.source != nil {
		sub, err := p.features.Subscribe("overmind")
		if err != nil {
			return err
		}
		featureC = sub.C()
		captureDone = make(chan struct{})

		blocks := make(chan []byte, blockQueue)
		g.Go(func() error {
			defer close(blocks)
			if err := p.source.Run(ctx, blocks); err != nil {
				var coded errors.Error
				if errors.As(err, &coded) {
					p.log.ErrorWithCode(coded).Msg("Capture stopped")
				} else {
					p.log.Error().Err(err).Msg("Capture stopped")
				}
			}
			return nil
		})
		g.Go(func() error {
			defer close(captureDone)
			p.extractor.Run(ctx, blocks, p.features)
			return nil
		})
	} else {
		p.log.Warn().Dur("interval", p.cfg.HeartbeatInterval).Msg("No audio device, running on heartbeat")
	}

	g.Go(func() error {
		p.classify(ctx, featureC, captureDone)
		return nil
	})

	if p.cfg.ConsultInterval > 0 {
		g.Go(func() error {
			p.consultLoop(ctx)
			return nil
		})
	}

	if p.cfg.ProbeTries > 0 {
		g.Go(func() error {
			if err := p.director.Probe(ctx, p.cfg.ProbeTries, p.cfg.ProbeInterval); err != nil && ctx.Err() == nil {
				p.log.Warn().Err(err).Int("tries", p.cfg.ProbeTries).Msg("Model host not reachable, using fallback direction until it is")
			}
			return nil
		})
	}

	if p.recorder != nil && p.recorder.Enabled() && p.cfg.MetricsInterval > 0 {
		g.Go(func() error {
			p.recordLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (p *Pipeline) classify(ctx context.Context, features <-chan audio.Features, captureDone <-chan struct{}) {
	var (
		ticker    *time.Ticker
		heartbeat <-chan time.Time
	)
	startHeartbeat := func() {
		ticker = time.NewTicker(p.cfg.HeartbeatInterval)
		heartbeat = ticker.C
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	if features == nil {
		startHeartbeat()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-features:
			if !ok {
				features = nil
				continue
			}
			p.step(f)
		case <-captureDone:
			captureDone = nil
			features = p.drain(features)
			p.overmind.SetAudioMeta(overmind.NoAudioDevice)
			p.log.Warn().Msg("Capture ended, switching to heartbeat")
			startHeartbeat()
		case <-heartbeat:
			p.step(audio.Features{})
		}
	}
}

// drain classifies features already buffered when capture ended, so they
// are attributed to the capture device.
func (p *Pipeline) drain(features <-chan audio.Features) <-chan audio.Features {
	for {
		select {
		case f, ok := <-features:
			if !ok {
				return nil
			}
			p.step(f)
		default:
			return features
		}
	}
}

// step classifies one frame, layers the current AI context on top and
// publishes the snapshot.
func (p *Pipeline) step(f audio.Features) {
	s := p.overmind.Update(f.LowEnergy, f.MidEnergy, f.HighEnergy, f.SpectralFlux)

	ai := p.director.Context()
	s.AITheme = ai.Theme
	s.AIPrimaryColor = ai.PrimaryColor
	s.AISecondaryColor = ai.SecondaryColor
	s.AIDirective = ai.Directive

	p.mu.Lock()
	p.latest = s
	p.mu.Unlock()

	p.states.Publish(s)
}

func (p *Pipeline) consultLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ConsultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Latest()
			p.director.Consult(ctx, s.Genre.String(), s.Chaos(), s.EnergyTrend.String())
		}
	}
}

func (p *Pipeline) recordLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := p.Latest()
			sample := &metrics.Sample{
				Timestamp: now,
				Pipeline:  p.director.Metrics(),
				Vibe: metrics.VibeMetrics{
					Mood:      s.Mood.String(),
					Genre:     s.Genre.String(),
					Trend:     s.EnergyTrend.String(),
					BPM:       s.BPM,
					Theme:     s.AITheme,
					Directive: s.AIDirective,
				},
			}
			if err := p.recorder.Record(ctx, sample); err != nil && ctx.Err() == nil {
				p.log.Error().Err(err).Msg("Failed to record metrics sample")
			}
		}
	}
}
