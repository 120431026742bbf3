package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genManifest(t *rapid.T) Manifest {
	idGen := rapid.StringMatching(`[a-z0-9][a-z0-9._-]{0,15}`)
	return Manifest{
		ID:        idGen.Draw(t, "id"),
		Name:      rapid.StringMatching(`[A-Za-z][A-Za-z0-9]{0,15}`).Draw(t, "name"),
		Kind:      rapid.SampledFrom([]string{"quickshell", "custom", "fallback"}).Draw(t, "kind"),
		Priority:  rapid.IntRange(PriorityMin, PriorityMax).Draw(t, "priority"),
		Exec:      rapid.SampledFrom([]string{"/usr/bin/foo", "foo", "foo-bar"}).Draw(t, "exec"),
		Autostart: rapid.Bool().Draw(t, "autostart"),
	}
}

// TestRapid_ParseRenderRoundTrip is the "parse(render(M)) = M" property
// from the testable-properties list.
func TestRapid_ParseRenderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := genManifest(t)

		data, err := Render(m)
		require.NoError(t, err)

		got, err := Parse(data, "")
		require.NoError(t, err)
		require.Equal(t, m, got)
	})
}
