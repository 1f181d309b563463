package director

const (
	ChaosDirective = "CHAOS_INJECTION"
	ChaosTheme     = "SYSTEM_FAILURE"
	ChaosPrimary   = "#FF0000"
)

// AiContext is the creative direction layered onto each snapshot.
type AiContext struct {
	Theme          string `json:"theme"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	Directive      string `json:"directive"`
}

// DefaultContext is the bootstrap context used before the first consult.
func DefaultContext() AiContext {
	return AiContext{
		Theme:          "BOOT_SEQUENCE",
		PrimaryColor:   "#FFFFFF",
		SecondaryColor: "#000000",
		Directive:      "INITIALIZING",
	}
}
