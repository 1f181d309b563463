package director

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackAlwaysValid(t *testing.T) {
	genres := []string{"Unknown", "Ambient", "Techno", "DnB", "Dubstep", "Polka"}
	trends := []string{"RISING", "FALLING", "STABLE"}

	for _, g := range genres {
		for _, tr := range trends {
			for _, chaos := range []float64{0, 1} {
				ctx := Fallback(g, chaos, tr)

				doc := map[string]any{
					"theme":           ctx.Theme,
					"primary_color":   ctx.PrimaryColor,
					"secondary_color": ctx.SecondaryColor,
					"directive":       ctx.Directive,
				}
				require.NoError(t, contextSchema.Validate(doc), "%s/%s/%v", g, tr, chaos)
				assert.NotEmpty(t, ctx.Theme)
				assert.NotEmpty(t, ctx.Directive)
				assert.Equal(t, ctx, Fallback(g, chaos, tr))
			}
		}
	}
}

func TestFallbackFollowsTrend(t *testing.T) {
	rising := Fallback("Techno", 0, "RISING")
	falling := Fallback("Techno", 0, "FALLING")
	stable := Fallback("Techno", 0, "STABLE")

	assert.NotEqual(t, rising.PrimaryColor, falling.PrimaryColor)
	assert.NotEqual(t, stable.PrimaryColor, falling.PrimaryColor)
	assert.Equal(t, "INITIATE_DROP_SEQUENCE", Fallback("Techno", 1, "STABLE").Directive)
}

func TestParseContext(t *testing.T) {
	ctx, err := parseContext(goodAnswer)
	require.NoError(t, err)
	assert.Equal(t, "OPEN_THE_GATES", ctx.Directive)

	_, err = parseContext(`{"theme":"X","primary_color":"red","secondary_color":"#FFFFFF","directive":"GO"}`)
	require.Error(t, err)

	_, err = parseContext(`null`)
	require.Error(t, err)
}
