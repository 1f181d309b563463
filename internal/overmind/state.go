package overmind

import (
	"fmt"

	"codeberg.org/mutker/vibesd/internal/telemetry"
)

// Mood is the coarse intensity class of the audio.
type Mood int

const (
	Chill Mood = iota
	Build
	Chaos
)

var moodNames = [...]string{"Chill", "Build", "Chaos"}

func (m Mood) String() string {
	if m < 0 || int(m) >= len(moodNames) {
		return fmt.Sprintf("Mood(%d)", int(m))
	}
	return moodNames[m]
}

func (m Mood) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mood) UnmarshalText(b []byte) error {
	for i, name := range moodNames {
		if name == string(b) {
			*m = Mood(i)
			return nil
		}
	}
	return fmt.Errorf("unknown mood %q", b)
}

// Genre is the heuristic style class, refreshed every genre tick.
type Genre int

const (
	Unknown Genre = iota
	Ambient
	Techno
	DnB
	Dubstep
)

var genreNames = [...]string{"Unknown", "Ambient", "Techno", "DnB", "Dubstep"}

func (g Genre) String() string {
	if g < 0 || int(g) >= len(genreNames) {
		return fmt.Sprintf("Genre(%d)", int(g))
	}
	return genreNames[g]
}

func (g Genre) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Genre) UnmarshalText(b []byte) error {
	for i, name := range genreNames {
		if name == string(b) {
			*g = Genre(i)
			return nil
		}
	}
	return fmt.Errorf("unknown genre %q", b)
}

// Trend is the short-window momentum of total energy.
type Trend int

const (
	Stable Trend = iota
	Rising
	Falling
)

var trendNames = [...]string{"STABLE", "RISING", "FALLING"}

func (t Trend) String() string {
	if t < 0 || int(t) >= len(trendNames) {
		return fmt.Sprintf("Trend(%d)", int(t))
	}
	return trendNames[t]
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(b []byte) error {
	for i, name := range trendNames {
		if name == string(b) {
			*t = Trend(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trend %q", b)
}

// AudioMetadata describes the capture device feeding the pipeline.
type AudioMetadata struct {
	DeviceName string `json:"device_name"`
	SampleRate uint32 `json:"sample_rate"`
	Channels   uint16 `json:"channels"`
}

// NoAudioDevice is reported when capture could not be started.
var NoAudioDevice = AudioMetadata{DeviceName: "NO_AUDIO_DEVICE"}

// GlobalState is one full snapshot. Field names are the wire contract for
// visual clients.
type GlobalState struct {
	Mood         Mood    `json:"state"`
	Genre        Genre   `json:"genre"`
	BPM          float64 `json:"bpm"`
	GlitchFactor float64 `json:"glitch_factor"`
	LowEnergy    float64 `json:"low_energy"`
	MidEnergy    float64 `json:"mid_energy"`
	HighEnergy   float64 `json:"high_energy"`
	SpectralFlux float64 `json:"spectral_flux"`
	EnergyTrend  Trend   `json:"energy_trend"`

	AITheme          string `json:"ai_theme"`
	AIPrimaryColor   string `json:"ai_primary_color"`
	AISecondaryColor string `json:"ai_secondary_color"`
	AIDirective      string `json:"ai_directive"`

	SystemStats telemetry.Stats `json:"system_stats"`
	AudioMeta   AudioMetadata   `json:"audio_meta"`
}

// DefaultState is the snapshot before any audio has been classified.
func DefaultState() GlobalState {
	return GlobalState{
		Mood:             Chill,
		Genre:            Unknown,
		BPM:              128,
		EnergyTrend:      Stable,
		AITheme:          "BOOT_SEQUENCE",
		AIPrimaryColor:   "#FFFFFF",
		AISecondaryColor: "#000000",
		AIDirective:      "INITIALIZING",
		AudioMeta:        AudioMetadata{DeviceName: "Scanning..."},
	}
}

// Chaos returns the chaos level handed to the AI director: 1 while the
// mood is Chaos, 0 otherwise.
func (s GlobalState) Chaos() float64 {
	if s.Mood == Chaos {
		return 1
	}
	return 0
}
