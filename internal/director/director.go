// Package director enriches classification snapshots with creative
// direction from a generative model.
//
// Consult never fails visibly: cache hits, an open breaker, transport,
// parse and schema failures all end with a usable AiContext in place.
package director

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/vibesd/internal/config"
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/metrics"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Config tunes the model client, breaker and response cache.
type Config struct {
	Host             string
	Model            string
	RequestTimeout   time.Duration
	RetryAttempts    int
	RetryBase        time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	CacheSize        int
	CacheTTL         time.Duration
}

// DefaultConfig mirrors the process-wide defaults in package config.
func DefaultConfig() Config {
	return Config{
		Host:             config.DefaultOllamaHost,
		Model:            config.DefaultOllamaModel,
		RequestTimeout:   config.DefaultRequestTimeout,
		RetryAttempts:    config.DefaultRetryAttempts,
		RetryBase:        config.DefaultRetryBase,
		BreakerThreshold: config.DefaultBreakerThreshold,
		BreakerCooldown:  config.DefaultBreakerCooldown,
		CacheSize:        config.DefaultCacheSize,
		CacheTTL:         config.DefaultCacheTTL,
	}
}

// Director owns the shared AiContext and decides, per consult, whether it
// comes from the cache, the model or a local fallback.
type Director struct {
	client  *Client
	breaker *Breaker
	metrics *metrics.Collector
	log     logger.Logger

	// mu guards current and serializes cache access with it. Never held
	// across the model call.
	mu      sync.Mutex
	current AiContext
	cache   *expirable.LRU[string, AiContext]
}

// New builds a Director. A nil collector or logger is replaced with a
// private collector and a no-op logger.
func New(cfg Config, collector *metrics.Collector, log logger.Logger) *Director {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Director{
		client:  NewClient(cfg),
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, log.With("breaker")),
		metrics: collector,
		log:     log,
		current: DefaultContext(),
		cache:   expirable.NewLRU[string, AiContext](max(cfg.CacheSize, 1), nil, cfg.CacheTTL),
	}
}

// Context returns a copy of the current AI context.
func (d *Director) Context() AiContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Director) Metrics() metrics.PipelineMetrics {
	return d.metrics.Snapshot()
}

func (d *Director) Breaker() *Breaker {
	return d.breaker
}

// CacheKey buckets chaos to one decimal so nearby readings share an entry.
func CacheKey(genre string, chaos float64, trend string) string {
	return fmt.Sprintf("%s_%.1f_%s", genre, math.Round(chaos*10)/10, trend)
}

// Consult refreshes the shared context for the given classification.
func (d *Director) Consult(ctx context.Context, genre string, chaos float64, trend string) {
	start := time.Now()
	d.metrics.RecordRequest()

	key := CacheKey(genre, chaos, trend)

	d.mu.Lock()
	if cached, ok := d.cache.Get(key); ok {
		d.current = cached
		d.mu.Unlock()

		d.metrics.RecordCacheHit()
		d.metrics.RecordLatency(time.Since(start))
		d.log.Debug().Str("key", key).Msg("Cache hit")
		return
	}
	d.mu.Unlock()

	done, ok := d.breaker.Allow()
	if !ok {
		fallback := Fallback(genre, chaos, trend)

		d.mu.Lock()
		d.current = fallback
		d.cache.Add(key, fallback)
		d.mu.Unlock()

		d.metrics.RecordLatency(time.Since(start))
		d.log.Debug().Str("key", key).Msg("Breaker open, using fallback")
		return
	}

	d.mu.Lock()
	previous := d.current.Theme
	d.mu.Unlock()

	d.log.Info().
		Str("genre", genre).
		Float64("chaos", chaos).
		Str("trend", trend).
		Msg("Consulting model")

	raw, err := d.client.Generate(ctx, buildPrompt(genre, chaos, trend, previous))
	if err != nil {
		d.fail(done, err, genre, chaos, trend)
		return
	}

	next, err := parseContext(raw)
	if err != nil {
		d.fail(done, err, genre, chaos, trend)
		return
	}

	done(true)

	d.mu.Lock()
	d.current = next
	d.cache.Add(key, next)
	d.mu.Unlock()

	d.metrics.RecordLatency(time.Since(start))
	d.log.Info().Str("theme", next.Theme).Str("directive", next.Directive).Msg("Model context applied")
}

// fail absorbs a model failure. Every failure counts against the breaker;
// schema violations are not counted as errors. The fallback is not cached
// so the next consult for the same key tries the model again.
func (d *Director) fail(done func(bool), err error, genre string, chaos float64, trend string) {
	if !errors.HasCode(err, ErrSchema) {
		d.metrics.RecordError()
	}
	done(false)

	var coded errors.Error
	if errors.As(err, &coded) {
		d.log.ErrorWithCode(coded).Stringer("breaker", d.breaker.State()).Msg("Model consult failed")
	} else {
		d.log.Error().Err(err).Stringer("breaker", d.breaker.State()).Msg("Model consult failed")
	}

	fallback := Fallback(genre, chaos, trend)

	d.mu.Lock()
	d.current = fallback
	d.mu.Unlock()
}

// UpdateBoredom forces the chaos directive once the audience is bored
// (score > 0.8). It reports whether the context changed.
func (d *Director) UpdateBoredom(score float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if score <= 0.8 || d.current.Directive == ChaosDirective {
		return false
	}

	d.current.Directive = ChaosDirective
	d.current.Theme = ChaosTheme
	d.current.PrimaryColor = ChaosPrimary

	d.log.Warn().Float64("boredom", score).Msg("Boredom threshold crossed, injecting chaos")
	return true
}

// Probe waits for the model host to come up. It is advisory; Consult works
// regardless of its outcome.
func (d *Director) Probe(ctx context.Context, tries int, interval time.Duration) error {
	if err := d.client.Probe(ctx, tries, interval); err != nil {
		return err
	}
	d.log.Info().Msg("Model host is ready")
	return nil
}

func buildPrompt(genre string, chaos float64, trend, previousTheme string) string {
	var b strings.Builder

	b.WriteString("You direct the visuals of a live audio-reactive show.\n")
	b.WriteString("Current reading:\n")
	fmt.Fprintf(&b, "- Genre: %s\n", genre)
	fmt.Fprintf(&b, "- Chaos level: %.2f\n", chaos)
	fmt.Fprintf(&b, "- Energy trend: %s (rising should brighten, falling should darken)\n", trend)
	fmt.Fprintf(&b, "- Previous theme: %s (pick something different)\n", previousTheme)
	b.WriteString("Answer with a single JSON object and nothing else:\n")
	b.WriteString(`{"theme": "UPPERCASE_THEME_NAME", "primary_color": "#RRGGBB", "secondary_color": "#RRGGBB", "directive": "SHORT_SCI_FI_COMMAND"}`)

	return b.String()
}
