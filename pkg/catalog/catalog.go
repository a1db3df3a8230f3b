// Package catalog holds the static disease knowledge table used to enrich
// bare detections with descriptions and treatment advice.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category classifies the cause of a catalog entry
type Category string

const (
	CategoryFungus     Category = "fungus"
	CategoryBacteria   Category = "bacteria"
	CategoryVirus      Category = "virus"
	CategoryMite       Category = "mite"
	CategoryDeficiency Category = "deficiency"
	CategoryHealthy    Category = "healthy"
)

// ParseCategory accepts English or Spanish labels ("Hongo", "Ácaro", ...).
// Unrecognised labels are kept lower-cased.
func ParseCategory(label string) Category {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "fungus", "fungi", "hongo":
		return CategoryFungus
	case "bacteria", "bacterium":
		return CategoryBacteria
	case "virus":
		return CategoryVirus
	case "mite", "ácaro", "acaro":
		return CategoryMite
	case "deficiency", "deficiencia":
		return CategoryDeficiency
	case "healthy", "sano", "saludable":
		return CategoryHealthy
	}
	return Category(l)
}

// UnmarshalText lets JSON catalogs use either language
func (c *Category) UnmarshalText(text []byte) error {
	*c = ParseCategory(string(text))
	return nil
}

// UnmarshalYAML lets YAML catalogs use either language
func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}

// Entry is one known disease (or healthy class) of the detection model
type Entry struct {
	ID                 int      `json:"id" yaml:"id"`
	ClassNameEN        string   `json:"class_name_en" yaml:"class_name_en"`
	ClassNameES        string   `json:"class_name_es" yaml:"class_name_es"`
	DisplayName        string   `json:"display_name" yaml:"display_name"`
	Category           Category `json:"category" yaml:"category"`
	Status             string   `json:"status,omitempty" yaml:"status,omitempty"`
	AffectedPlants     []string `json:"affected_plants" yaml:"affected_plants"`
	Severity           string   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Description        string   `json:"description" yaml:"description"`
	Symptoms           []string `json:"symptoms,omitempty" yaml:"symptoms,omitempty"`
	OrganicTreatment   []string `json:"organic_recommendations,omitempty" yaml:"organic_recommendations,omitempty"`
	ChemicalTreatment  []string `json:"chemical_treatment,omitempty" yaml:"chemical_treatment,omitempty"`
	Cause              string   `json:"cause,omitempty" yaml:"cause,omitempty"`
	PreventiveMeasures []string `json:"preventive_measures,omitempty" yaml:"preventive_measures,omitempty"`
	TreatmentPlan      []string `json:"treatment_plan,omitempty" yaml:"treatment_plan,omitempty"`
	ExpertLink         string   `json:"expert_link,omitempty" yaml:"expert_link,omitempty"`
	Image              string   `json:"image,omitempty" yaml:"image,omitempty"`
}

// Name returns the display name, falling back to the class names
func (e Entry) Name() string {
	switch {
	case e.DisplayName != "":
		return e.DisplayName
	case e.ClassNameES != "":
		return e.ClassNameES
	default:
		return e.ClassNameEN
	}
}

// Catalog is a read-only, indexed set of entries. It is safe for
// concurrent use because it is never mutated after New.
type Catalog struct {
	entries []Entry
	byID    map[int]int
	byEN    map[string]int
	byES    map[string]int
}

// New indexes entries. Duplicate ids are rejected; duplicate class names
// keep the first entry.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, len(entries)),
		byID:    make(map[int]int, len(entries)),
		byEN:    make(map[string]int, len(entries)),
		byES:    make(map[string]int, len(entries)),
	}
	copy(c.entries, entries)

	for i, e := range c.entries {
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %d", e.ID)
		}
		c.byID[e.ID] = i
		if e.ClassNameEN != "" {
			if _, ok := c.byEN[e.ClassNameEN]; !ok {
				c.byEN[e.ClassNameEN] = i
			}
		}
		if e.ClassNameES != "" {
			if _, ok := c.byES[e.ClassNameES]; !ok {
				c.byES[e.ClassNameES] = i
			}
		}
	}
	return c, nil
}

// ByID looks an entry up by model class id
func (c *Catalog) ByID(id int) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// ByEnglishName looks an entry up by exact English class name
func (c *Catalog) ByEnglishName(name string) (Entry, bool) {
	return c.lookup(c.byEN, name)
}

// BySpanishName looks an entry up by exact Spanish class name
func (c *Catalog) BySpanishName(name string) (Entry, bool) {
	return c.lookup(c.byES, name)
}

func (c *Catalog) lookup(index map[string]int, name string) (Entry, bool) {
	if c == nil || name == "" {
		return Entry{}, false
	}
	i, ok := index[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of all entries ordered by id
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClassNames returns the English class names ordered by id
func (c *Catalog) ClassNames() []string {
	entries := c.Entries()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ClassNameEN != "" {
			names = append(names, e.ClassNameEN)
		}
	}
	return names
}
