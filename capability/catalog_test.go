package capability_test

import (
	"testing"

	"github.com/reglet-dev/reactor-sdk/capability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clipboard struct{}

func (c *clipboard) Read() string   { return "" }
func (c *clipboard) Write(s string) {}

func newTestCatalog(t *testing.T) *capability.Catalog {
	t.Helper()
	c := capability.NewCatalog(capability.WithCatalogLogger(newTestLogger()))
	_, err := c.Register(newStorageSource())
	require.NoError(t, err)
	_, err = c.Register(capability.Declare[clipboard]("clipboard", map[string]capability.Meta{
		"Read":  {Alias: "get"},
		"Write": {Alias: "set", UIThread: true},
	}))
	require.NoError(t, err)
	return c
}

func TestCatalog_Register(t *testing.T) {
	t.Run("rejects duplicates", func(t *testing.T) {
		c := newTestCatalog(t)
		_, err := c.Register(newStorageSource())
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("rejects blank names", func(t *testing.T) {
		c := capability.NewCatalog()
		_, err := c.Register(&staticSource{name: " "})
		assert.Error(t, err)
	})

	t.Run("does not build", func(t *testing.T) {
		c := capability.NewCatalog()
		r, err := c.Register(newStorageSource())
		require.NoError(t, err)
		assert.False(t, r.HasBuilt())

		got, ok := c.Get("storage")
		require.True(t, ok)
		assert.Same(t, r, got)
	})
}

func TestCatalog_Manifest(t *testing.T) {
	c := newTestCatalog(t)

	m := c.Manifest()
	assert.Equal(t, capability.ManifestVersion, m.Version)
	assert.Equal(t, []string{"clipboard", "storage"}, c.Names())
	require.Len(t, m.Modules, 2)

	clip, ok := m.Module("clipboard")
	require.True(t, ok)
	assert.Equal(t, []string{"get", "set"}, clip.Methods)

	st, ok := m.Module("storage")
	require.True(t, ok)
	assert.Equal(t, []string{"Baz", "Put", "bar"}, st.Methods)

	_, ok = m.Module("camera")
	assert.False(t, ok)
}

func TestCatalog_Missing(t *testing.T) {
	c := newTestCatalog(t)

	required := &capability.Manifest{
		Version: "1.0.0",
		Modules: []capability.ModuleManifest{
			{Name: "storage", Methods: []string{"bar", "Foo"}},
			{Name: "clipboard"},
			{Name: "camera", Methods: []string{"snap"}},
		},
	}
	assert.Equal(t, []string{"camera", "storage.Foo"}, c.Missing(required))
	assert.Nil(t, c.Missing(nil))
}

func TestManifest_CheckVersion(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		constraint string
		wantErr    bool
	}{
		{"satisfied", "1.2.0", capability.SupportedManifestVersions, false},
		{"major mismatch", "2.0.0", capability.SupportedManifestVersions, true},
		{"invalid version", "one", capability.SupportedManifestVersions, true},
		{"invalid constraint", "1.0.0", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &capability.Manifest{Version: tt.version}
			err := m.CheckVersion(tt.constraint)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
