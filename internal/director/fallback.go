package director

type palette struct {
	theme  string
	bright string
	base   string
	dark   string
	accent string
}

var palettes = map[string]palette{
	"Ambient": {theme: "DEEP_DRIFT", bright: "#7FDBFF", base: "#3A6EA5", dark: "#1B2A41", accent: "#C3F0CA"},
	"Techno":  {theme: "NEON_GRID", bright: "#39FF14", base: "#00B3B3", dark: "#004D4D", accent: "#FF00FF"},
	"DnB":     {theme: "HYPERDRIVE", bright: "#FFD300", base: "#FF8C00", dark: "#7A3E00", accent: "#00E5FF"},
	"Dubstep": {theme: "BASS_FRACTURE", bright: "#B026FF", base: "#6A0DAD", dark: "#2E0854", accent: "#ADFF2F"},
}

var defaultPalette = palette{theme: "SIGNAL_SCAN", bright: "#E0E0E0", base: "#9E9E9E", dark: "#424242", accent: "#00BFFF"}

// Fallback derives a context from the classification alone. It is used
// whenever the model is unavailable or returns an unusable answer, and is
// deterministic for equal inputs.
func Fallback(genre string, chaos float64, trend string) AiContext {
	p, ok := palettes[genre]
	if !ok {
		p = defaultPalette
	}

	ctx := AiContext{
		Theme:          p.theme,
		PrimaryColor:   p.base,
		SecondaryColor: p.accent,
		Directive:      "HOLD_PATTERN",
	}

	switch trend {
	case "RISING":
		ctx.PrimaryColor = p.bright
		ctx.Directive = "AMPLIFY_SIGNAL"
	case "FALLING":
		ctx.PrimaryColor = p.dark
		ctx.Directive = "DAMPEN_FIELDS"
	}

	if chaos >= 0.5 {
		ctx.Theme = p.theme + "_OVERLOAD"
		ctx.Directive = "INITIATE_DROP_SEQUENCE"
	}

	return ctx
}
