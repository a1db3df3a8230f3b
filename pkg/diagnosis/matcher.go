package diagnosis

import (
	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/types"
)

// Matcher tries to find the catalog entry for a detection
type Matcher func(det types.Detection, cat *catalog.Catalog) (catalog.Entry, bool)

// DefaultMatchers is the lookup precedence: id, English name, Spanish name
func DefaultMatchers() []Matcher {
	return []Matcher{MatchByID, MatchByEnglishName, MatchBySpanishName}
}

// MatchByID matches on the numeric class id when the detection has one
func MatchByID(det types.Detection, cat *catalog.Catalog) (catalog.Entry, bool) {
	if det.ID == nil {
		return catalog.Entry{}, false
	}
	return cat.ByID(*det.ID)
}

// MatchByEnglishName matches on exact class_name_en
func MatchByEnglishName(det types.Detection, cat *catalog.Catalog) (catalog.Entry, bool) {
	return cat.ByEnglishName(det.ClassNameEN)
}

// MatchBySpanishName matches on exact class_name_es
func MatchBySpanishName(det types.Detection, cat *catalog.Catalog) (catalog.Entry, bool) {
	return cat.BySpanishName(det.ClassNameES)
}
