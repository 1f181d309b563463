// Package overmind classifies audio features into mood, genre and energy
// trend snapshots.
//
// Cadences are counted in Update calls and assume the ~30 Hz rate of the
// capture or heartbeat loop: trend and host telemetry refresh every 30
// calls (~1s), genre every 300 (~10s). A different driving rate stretches
// or compresses these windows accordingly.
package overmind

import (
	"codeberg.org/mutker/vibesd/internal/errors"
	"codeberg.org/mutker/vibesd/internal/logger"
	"codeberg.org/mutker/vibesd/internal/telemetry"
)

const (
	historySize    = 150
	trendWindow    = 30
	trendEvery     = 30
	statsEvery     = 30
	genreEvery     = 300
	trendThreshold = 0.1
)

// Overmind owns the rolling classification state. It is not safe for
// concurrent use; a single loop drives it.
type Overmind struct {
	state   GlobalState
	frame   uint64
	history *history
	stats   telemetry.Reader
	log     logger.Logger
}

// New returns an Overmind seeded with the default snapshot and the given
// capture metadata.
func New(meta AudioMetadata, stats telemetry.Reader, log logger.Logger) *Overmind {
	if log == nil {
		log = logger.Nop()
	}
	if stats == nil {
		stats = telemetry.Static{}
	}

	state := DefaultState()
	state.AudioMeta = meta

	return &Overmind{
		state:   state,
		history: newHistory(historySize),
		stats:   stats,
		log:     log,
	}
}

// SetAudioMeta replaces the capture metadata reported in snapshots.
func (o *Overmind) SetAudioMeta(meta AudioMetadata) {
	o.state.AudioMeta = meta
}

// Frame returns the number of Update calls so far.
func (o *Overmind) Frame() uint64 {
	return o.frame
}

// Update folds one feature frame into the state and returns a copy of the
// resulting snapshot.
func (o *Overmind) Update(low, mid, high, flux float64) GlobalState {
	o.frame++

	o.state.LowEnergy = low
	o.state.MidEnergy = mid
	o.state.HighEnergy = high
	o.state.SpectralFlux = flux

	o.history.Push((low + mid + high) / 3)

	if o.frame%trendEvery == 0 && o.history.Len() > trendWindow {
		o.state.EnergyTrend = classifyTrend(o.history.MeanNewest(trendWindow) - o.history.MeanOldest(trendWindow))
	}

	o.state.Mood, o.state.GlitchFactor = classifyMood(low, mid, flux)

	if o.frame%genreEvery == 0 {
		o.state.Genre, o.state.BPM = classifyGenre(low, mid, high)
		o.log.Debug().
			Stringer("genre", o.state.Genre).
			Float64("bpm", o.state.BPM).
			Stringer("trend", o.state.EnergyTrend).
			Msg("Classification")
	}

	if o.frame%statsEvery == 0 {
		o.refreshStats()
	}

	return o.state
}

func (o *Overmind) refreshStats() {
	stats, err := o.stats.Read()
	if err != nil {
		if e, ok := err.(errors.Error); ok {
			o.log.ErrorWithCode(e).Msg("Failed to read host telemetry")
		} else {
			o.log.Error().Err(err).Msg("Failed to read host telemetry")
		}
		return
	}
	o.state.SystemStats = stats
}

func classifyTrend(delta float64) Trend {
	switch {
	case delta > trendThreshold:
		return Rising
	case delta < -trendThreshold:
		return Falling
	default:
		return Stable
	}
}

func classifyMood(low, mid, flux float64) (Mood, float64) {
	switch {
	case flux > 0.6 || low > 0.8:
		return Chaos, 1.0
	case flux > 0.3 || mid > 0.5:
		return Build, 0.3
	default:
		return Chill, 0.0
	}
}

func classifyGenre(low, mid, high float64) (Genre, float64) {
	switch {
	case low < 0.15 && mid < 0.15:
		return Ambient, 90
	case low > 0.65 && high > 0.65:
		return DnB, 174
	case low > 0.45 && mid > 0.35:
		return Techno, 128
	case low > 0.3 && mid > 0.2:
		return Dubstep, 140
	default:
		return Unknown, 120
	}
}
