package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape tells which of the two response layouts the service used
type Shape int

const (
	// ShapeSingle means the detection fields sit at the top level of the body
	ShapeSingle Shape = iota
	// ShapeList means the body carries a "detections" array
	ShapeList
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	default:
		return "single"
	}
}

// Detection is one classified result returned by the inference service
type Detection struct {
	ID             *int      `json:"id,omitempty"`
	ClassNameEN    string    `json:"class_name_en,omitempty"`
	ClassNameES    string    `json:"class_name_es,omitempty"`
	Confidence     float64   `json:"confidence"`
	BBox           []float64 `json:"bbox,omitempty"`
	ImageWithBoxes string    `json:"image_with_boxes,omitempty"`
}

// HasClass reports whether the detection carries any class information
func (d Detection) HasClass() bool {
	return d.ID != nil || d.ClassNameEN != "" || d.ClassNameES != ""
}

// UnmarshalJSON decodes a detection leniently. Only a body that is not a
// JSON object is an error; loosely typed fields degrade to their zero value:
// an id that is not an integer counts as no id, confidence may be a numeric
// string, and a bbox that is not a flat or nested number array is dropped.
func (d *Detection) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             json.RawMessage `json:"id"`
		ClassNameEN    json.RawMessage `json:"class_name_en"`
		ClassNameES    json.RawMessage `json:"class_name_es"`
		Confidence     json.RawMessage `json:"confidence"`
		BBox           json.RawMessage `json:"bbox"`
		ImageWithBoxes json.RawMessage `json:"image_with_boxes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = Detection{
		ID:             parseID(raw.ID),
		ClassNameEN:    parseString(raw.ClassNameEN),
		ClassNameES:    parseString(raw.ClassNameES),
		Confidence:     parseFloat(raw.Confidence),
		BBox:           parseBBox(raw.BBox),
		ImageWithBoxes: parseString(raw.ImageWithBoxes),
	}
	return nil
}

// parseID accepts numbers and numeric strings holding an integral value
func parseID(raw json.RawMessage) *int {
	s := parseString(raw)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	id := int(v)
	if float64(id) != v {
		return nil
	}
	return &id
}

// parseString returns a JSON string's value or a number's literal text
func parseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

func parseFloat(raw json.RawMessage) float64 {
	s := parseString(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// parseBBox takes [x1,y1,x2,y2] or the first box of [[...], ...]
func parseBBox(raw json.RawMessage) []float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}
	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0]
	}
	return nil
}

// Response is the decoded body of an inference call. Both wire layouts
// end up here; Primary gives the canonical detection.
type Response struct {
	Shape          Shape           `json:"shape"`
	Detections     []Detection     `json:"detections"`
	ImageWithBoxes string          `json:"image_with_boxes,omitempty"`
	Success        *bool           `json:"success,omitempty"`
	Code           string          `json:"code,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// Primary returns the detection the resolver works on: the first element
// of a list response, or the top-level detection of a single response.
func (r *Response) Primary() (Detection, bool) {
	if r == nil || len(r.Detections) == 0 {
		return Detection{}, false
	}
	return r.Detections[0], true
}

// ParseResponse decodes a service body into a Response. The body must be a
// JSON object; an empty detections array is treated like a single
// response so the top-level fields, if any, are still considered.
func ParseResponse(body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	var envelope struct {
		Detections     []Detection `json:"detections"`
		ImageWithBoxes string      `json:"image_with_boxes"`
		Success        *bool       `json:"success"`
		Code           string      `json:"code"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	resp := &Response{
		ImageWithBoxes: envelope.ImageWithBoxes,
		Success:        envelope.Success,
		Code:           envelope.Code,
		Raw:            append(json.RawMessage(nil), trimmed...),
	}

	if len(envelope.Detections) > 0 {
		resp.Shape = ShapeList
		resp.Detections = envelope.Detections
		return resp, nil
	}

	var single Detection
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("failed to parse detection: %w", err)
	}
	resp.Shape = ShapeSingle
	if single.HasClass() || single.Confidence != 0 {
		resp.Detections = []Detection{single}
	}
	return resp, nil
}
