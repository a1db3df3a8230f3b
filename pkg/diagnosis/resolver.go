package diagnosis

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/phytoguard/pkg/catalog"
	"github.com/menta2k/phytoguard/pkg/types"
)

// Status is the health verdict of a diagnosis
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusInfected Status = "infected"
)

const (
	// UnknownName is shown when neither the catalog nor the detection names the class
	UnknownName = "unknown"
	// NoInfo replaces the description when no catalog entry matched
	NoInfo = "No information found in the local disease catalog."
	// PlaceholderImage is the history image when no picture is available
	PlaceholderImage = "/placeholder.svg?height=100&width=100"
	noValue          = "-"
)

// Record is a history entry synthesized from a diagnosis
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Date     string `json:"date"`
	Status   Status `json:"status"`
	Disease  string `json:"disease,omitempty"`
	Image    string `json:"image"`
	Archived bool   `json:"archived"`
}

// Diagnosis is the display-ready outcome of resolving a response
type Diagnosis struct {
	Name              string          `json:"name"`
	Confidence        float64         `json:"confidence"`
	Plants            string          `json:"plants"`
	AffectedPlants    []string        `json:"affected_plants,omitempty"`
	Status            Status          `json:"status"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	Recommendations   []string        `json:"recommendations"`
	ChemicalTreatment []string        `json:"chemical_treatment,omitempty"`
	TreatmentPlan     []string        `json:"treatment_plan"`
	ExpertLink        string          `json:"expert_link"`
	Image             string          `json:"image"`
	Matched           bool            `json:"matched"`
	EntryID           *int            `json:"entry_id,omitempty"`
	Detection         types.Detection `json:"detection"`
	Record            Record          `json:"record"`
}

// Resolver maps inference responses onto catalog entries
type Resolver struct {
	matchers []Matcher
	now      func() time.Time
}

// Option customises a Resolver
type Option func(*Resolver)

// WithMatchers replaces the matcher chain
func WithMatchers(m ...Matcher) Option {
	return func(r *Resolver) { r.matchers = m }
}

// WithClock replaces the clock used for record ids and dates
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver using DefaultMatchers and the wall clock
func New(opts ...Option) *Resolver {
	r := &Resolver{
		matchers: DefaultMatchers(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds a diagnosis for resp. original is the display reference of
// the user-submitted image, used when the response has no annotated image.
// Resolve never fails; missing data degrades to placeholders.
func (r *Resolver) Resolve(resp *types.Response, cat *catalog.Catalog, original string) Diagnosis {
	det, _ := resp.Primary()

	entry, matched := r.match(det, cat)
	status := HealthStatus(det)
	image := DisplayImage(resp, det, original)

	d := Diagnosis{
		Confidence:      det.Confidence,
		Status:          status,
		Image:           image,
		Matched:         matched,
		Detection:       det,
		Plants:          noValue,
		Category:        noValue,
		Description:     NoInfo,
		Recommendations: []string{},
		TreatmentPlan:   []string{},
	}

	if matched {
		id := entry.ID
		d.Name = entry.Name()
		d.EntryID = &id
		d.AffectedPlants = entry.AffectedPlants
		if len(entry.AffectedPlants) > 0 {
			d.Plants = strings.Join(entry.AffectedPlants, ", ")
		}
		if entry.Category != "" {
			d.Category = string(entry.Category)
		}
		if entry.Description != "" {
			d.Description = entry.Description
		}
		d.Recommendations = nonNil(entry.OrganicTreatment)
		d.ChemicalTreatment = entry.ChemicalTreatment
		d.TreatmentPlan = nonNil(entry.TreatmentPlan)
		d.ExpertLink = entry.ExpertLink
	} else {
		d.Name = FallbackName(det)
	}

	d.Record = r.record(d)
	return d
}

func (r *Resolver) match(det types.Detection, cat *catalog.Catalog) (catalog.Entry, bool) {
	if cat == nil {
		return catalog.Entry{}, false
	}
	for _, m := range r.matchers {
		if e, ok := m(det, cat); ok {
			return e, true
		}
	}
	return catalog.Entry{}, false
}

func (r *Resolver) record(d Diagnosis) Record {
	now := r.now()
	image := d.Image
	if image == "" {
		image = PlaceholderImage
	}
	return Record{
		ID:      strconv.FormatInt(now.UnixMilli(), 10),
		Name:    d.Name,
		Type:    d.Category,
		Date:    now.Format("2006-01-02"),
		Status:  d.Status,
		Disease: d.Name,
		Image:   image,
	}
}

// FallbackName picks the detection's own label: English, then Spanish,
// then UnknownName.
func FallbackName(det types.Detection) string {
	switch {
	case det.ClassNameEN != "":
		return det.ClassNameEN
	case det.ClassNameES != "":
		return det.ClassNameES
	default:
		return UnknownName
	}
}

// HealthStatus classifies a detection from its class names alone
func HealthStatus(det types.Detection) Status {
	en := strings.ToLower(det.ClassNameEN)
	es := strings.ToLower(det.ClassNameES)
	if strings.Contains(en, "healthy") || strings.Contains(es, "sano") || strings.Contains(es, "saludable") {
		return StatusHealthy
	}
	return StatusInfected
}

// DisplayImage prefers the annotated image from the response, then the one
// attached to the detection, then original.
func DisplayImage(resp *types.Response, det types.Detection, original string) string {
	if resp != nil && resp.ImageWithBoxes != "" {
		return ToDataURI(resp.ImageWithBoxes)
	}
	if det.ImageWithBoxes != "" {
		return ToDataURI(det.ImageWithBoxes)
	}
	return original
}

// ToDataURI returns s unchanged when it already is a data URI, otherwise
// treats it as base64 and prefixes a data URI header. The media type is
// sniffed from the payload and defaults to image/jpeg.
func ToDataURI(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(strings.ToLower(s), "data:") {
		return s
	}
	return "data:" + sniffImageType(s) + ";base64," + s
}

// EncodeDataURI wraps raw image bytes as a data URI
func EncodeDataURI(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and payload
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URI payload: %w", err)
	}
	return strings.TrimSuffix(header, ";base64"), data, nil
}

func sniffImageType(b64 string) string {
	// 512 sniffing bytes need at most 684 base64 characters
	head := b64
	if len(head) > 684 {
		head = head[:684]
	}
	head = head[:len(head)-len(head)%4]

	data, err := base64.StdEncoding.DecodeString(head)
	if err != nil || len(data) == 0 {
		return "image/jpeg"
	}
	if mime := http.DetectContentType(data); strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/jpeg"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
