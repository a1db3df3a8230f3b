package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Equal(t, 4, c.Len())

	scab, ok := c.ByID(0)
	require.True(t, ok)
	assert.Equal(t, "Roña del manzano", scab.DisplayName)
	assert.Equal(t, CategoryFungus, scab.Category)
	assert.Len(t, scab.TreatmentPlan, 3)

	healthy, ok := c.ByEnglishName("Apple___healthy")
	require.True(t, ok)
	assert.Equal(t, CategoryHealthy, healthy.Category)

	rot, ok := c.BySpanishName("Manzano___Pudrición negra del manzano")
	require.True(t, ok)
	assert.Equal(t, 1, rot.ID)

	assert.Equal(t, []string{"Apple___Apple_scab", "Apple___Black_rot", "Apple___Cedar_apple_rust", "Apple___healthy"}, c.ClassNames())
}

func TestLookupMisses(t *testing.T) {
	c := Default()
	_, ok := c.ByID(99)
	assert.False(t, ok)
	_, ok = c.ByEnglishName("")
	assert.False(t, ok)
	_, ok = c.BySpanishName("apple___healthy")
	assert.False(t, ok, "names match exactly")

	var nilCatalog *Catalog
	_, ok = nilCatalog.ByID(0)
	assert.False(t, ok)
	assert.Equal(t, 0, nilCatalog.Len())
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]Entry{{ID: 1}, {ID: 1}})
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Hongo":       CategoryFungus,
		"fungus":      CategoryFungus,
		"Bacteria":    CategoryBacteria,
		"Virus":       CategoryVirus,
		"Ácaro":       CategoryMite,
		"Deficiencia": CategoryDeficiency,
		"Saludable":   CategoryHealthy,
		"Oomycete":    Category("oomycete"),
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseCategory(in), in)
	}
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	body := `{"diseases":[{"id":7,"class_name_en":"Tomato___Leaf_Mold","class_name_es":"Tomate___Moho","display_name":"Moho de la hoja","category":"Hongo","affected_plants":["Tomate"],"description":"d"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	e, ok := c.ByID(7)
	require.True(t, ok)
	assert.Equal(t, CategoryFungus, e.Category)
	assert.Equal(t, []string{"Tomate"}, e.AffectedPlants)
}

func TestLoadFileYAMLDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	body := "diseases:\n  - id: 5\n    class_name_en: Corn___healthy\n    category: healthy\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	e, ok := c.ByEnglishName("Corn___healthy")
	require.True(t, ok)
	assert.Equal(t, "Corn___healthy", e.Name())
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestEntriesReturnsCopy(t *testing.T) {
	c := Default()
	entries := c.Entries()
	entries[0].DisplayName = "changed"

	e, _ := c.ByID(entries[0].ID)
	assert.NotEqual(t, "changed", e.DisplayName)
}
