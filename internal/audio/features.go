package audio

// Features is the per-block analysis result. Every field is in [0,1].
type Features struct {
	LowEnergy    float64 `json:"low_energy"`
	MidEnergy    float64 `json:"mid_energy"`
	HighEnergy   float64 `json:"high_energy"`
	SpectralFlux float64 `json:"spectral_flux"`
}

// Band edges in Hz.
const (
	LowCutoff  = 150.0
	HighCutoff = 2500.0
)

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
