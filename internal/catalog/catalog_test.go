package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Equal(t, 14, c.Len())

	iss, ok := c.ByID(25544)
	require.True(t, ok)
	assert.Equal(t, "ISS (International Space Station)", iss.Name)

	hubble, ok := c.ByID(27663)
	require.True(t, ok)
	assert.Equal(t, "Hubble Space Telescope", hubble.Name)

	_, ok = c.ByID(99999999)
	assert.False(t, ok)
}

func TestByNameIgnoresCase(t *testing.T) {
	c := Default()

	for _, name := range []string{"Envisat", "ENVISAT", "envisat"} {
		ref, ok := c.ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, 27386, ref.CatalogID)
	}

	_, ok := c.ByName("Voyager 1")
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	c := Default()
	refs := c.All()
	refs[0].Name = "mutated"

	ref, ok := c.ByID(25544)
	require.True(t, ok)
	assert.NotEqual(t, "mutated", ref.Name)
	assert.NotEqual(t, "mutated", c.All()[0].Name)
}

func TestSortedOrdersByID(t *testing.T) {
	sorted := Default().Sorted()
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].CatalogID, sorted[i].CatalogID)
	}
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		refs []SatelliteRef
		want string
	}{
		{"empty name", []SatelliteRef{{CatalogID: 1}}, "empty name"},
		{"zero id", []SatelliteRef{{Name: "A"}}, "must be positive"},
		{"negative id", []SatelliteRef{{Name: "A", CatalogID: -4}}, "must be positive"},
		{"duplicate id", []SatelliteRef{{Name: "A", CatalogID: 7}, {Name: "B", CatalogID: 7}}, "duplicate catalog id 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.refs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	src := `
satellites:
  - name: ISS
    catalogId: 25544
  - name: Tiangong
    catalogId: 48274
`
	c, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []int{25544, 48274}, c.IDs())
	assert.Equal(t, "Tiangong", c.NameOf(48274))
	assert.Equal(t, "", c.NameOf(1))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	src := `
satellites:
  - name: ISS
    norad: 25544
`
	_, err := Load(strings.NewReader(src))
	require.Error(t, err)
}

func TestLoadRejectsEmpty(t *testing.T) {
	_, err := Load(strings.NewReader("satellites: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no satellites")
}

func TestLoadFile(t *testing.T) {
	c, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), c.Len())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("satellites:\n  - name: Aeolus\n    catalogId: 43600\n"), 0o644))

	c, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
