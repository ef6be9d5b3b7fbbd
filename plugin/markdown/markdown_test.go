package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRender tests markdown to HTML conversion for typical card bodies.
func TestRender(t *testing.T) {
	r := NewRenderer()

	t.Run("heading and emphasis", func(t *testing.T) {
		out, err := r.Render("## Inbox summary\n\nYou have **62 promotions** pending.")
		require.NoError(t, err)
		assert.Contains(t, out, "<h2")
		assert.Contains(t, out, "<strong>62 promotions</strong>")
	})

	t.Run("list", func(t *testing.T) {
		out, err := r.Render("- CI failed on main\n- Invoice from Acme")
		require.NoError(t, err)
		assert.Contains(t, out, "<ul>")
		assert.Contains(t, out, "<li>CI failed on main</li>")
	})

	t.Run("gfm table", func(t *testing.T) {
		out, err := r.Render("| Folder | Count |\n|---|---|\n| inbox | 12 |")
		require.NoError(t, err)
		assert.Contains(t, out, "<table>")
		assert.Contains(t, out, "<td>inbox</td>")
	})

	t.Run("hard wraps", func(t *testing.T) {
		out, err := r.Render("first line\nsecond line")
		require.NoError(t, err)
		assert.Contains(t, out, "<br")
	})

	t.Run("raw html is not passed through", func(t *testing.T) {
		out, err := r.Render("before <script>alert(1)</script> after")
		require.NoError(t, err)
		assert.NotContains(t, out, "<script>")
	})

	t.Run("blank body", func(t *testing.T) {
		out, err := r.Render("   \n\t")
		require.NoError(t, err)
		assert.Equal(t, "", out)
	})
}

// TestRenderPackageHelper tests the shared package-level renderer.
func TestRenderPackageHelper(t *testing.T) {
	out, err := Render("plain text answer")
	require.NoError(t, err)
	assert.Contains(t, out, "<p>plain text answer</p>")
}
