package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseList(t *testing.T) {
	body := []byte(`{
		"success": true,
		"detections": [
			{"id": 0, "class_name_en": "Apple___Apple_scab", "class_name_es": "Manzano___Roña", "confidence": 0.93, "bbox": [1, 2, 3, 4]},
			{"id": 3, "class_name_en": "Apple___healthy", "confidence": 0.2}
		],
		"image_with_boxes": "Zm9v"
	}`)

	resp, err := ParseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, ShapeList, resp.Shape)
	assert.Len(t, resp.Detections, 2)
	assert.Equal(t, "Zm9v", resp.ImageWithBoxes)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)

	det, ok := resp.Primary()
	require.True(t, ok)
	require.NotNil(t, det.ID)
	assert.Equal(t, 0, *det.ID)
	assert.Equal(t, "Apple___Apple_scab", det.ClassNameEN)
	assert.Equal(t, []float64{1, 2, 3, 4}, det.BBox)
}

func TestParseResponseSingle(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"class_name_en":"Apple___healthy","confidence":0.95}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeSingle, resp.Shape)

	det, ok := resp.Primary()
	require.True(t, ok)
	assert.Nil(t, det.ID)
	assert.Equal(t, 0.95, det.Confidence)
}

func TestParseResponseEmptyDetectionsFallsBackToTopLevel(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"success":true,"detections":[],"class_name_es":"Vid___sana","confidence":0.4}`))
	require.NoError(t, err)
	assert.Equal(t, ShapeSingle, resp.Shape)
	det, ok := resp.Primary()
	require.True(t, ok)
	assert.Equal(t, "Vid___sana", det.ClassNameES)
}

func TestParseResponseNoDetection(t *testing.T) {
	resp, err := ParseResponse([]byte(`{"success":false,"detections":[]}`))
	require.NoError(t, err)
	_, ok := resp.Primary()
	assert.False(t, ok)
}

func TestParseResponseIDForms(t *testing.T) {
	tests := []struct {
		body string
		want *int
	}{
		{`{"id": 5, "confidence": 1}`, intPtr(5)},
		{`{"id": "12", "confidence": 1}`, intPtr(12)},
		{`{"id": 7.0, "confidence": 1}`, intPtr(7)},
		{`{"id": null, "class_name_en": "x"}`, nil},
		{`{"id": "", "class_name_en": "x"}`, nil},
		{`{"id": 1.5, "class_name_en": "x"}`, nil},
		{`{"id": "abc", "class_name_en": "x"}`, nil},
		{`{"id": true, "class_name_en": "x"}`, nil},
		{`{"id": {"v": 1}, "class_name_en": "x"}`, nil},
	}
	for _, tt := range tests {
		resp, err := ParseResponse([]byte(tt.body))
		require.NoError(t, err, tt.body)
		det, ok := resp.Primary()
		require.True(t, ok, tt.body)
		assert.Equal(t, tt.want, det.ID, tt.body)
	}
}

func TestParseResponseErrors(t *testing.T) {
	bad := []string{
		``,
		`[]`,
		`"text"`,
		`{"detections": "nope"}`,
		`{broken`,
	}
	for _, body := range bad {
		_, err := ParseResponse([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestParseResponseLooseFields(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		confidence float64
		bbox       []float64
	}{
		{"bbox object", `{"detections":[{"class_name_en":"Apple___healthy","confidence":0.9,"bbox":{"x":1,"y":2}}]}`, 0.9, nil},
		{"bbox nested", `{"detections":[{"class_name_en":"Apple___healthy","confidence":0.9,"bbox":[[1,2,3,4]]}]}`, 0.9, []float64{1, 2, 3, 4}},
		{"bbox string", `{"detections":[{"class_name_en":"Apple___healthy","confidence":0.9,"bbox":"1,2,3,4"}]}`, 0.9, nil},
		{"id not numeric", `{"detections":[{"id":"abc","class_name_en":"Apple___healthy","confidence":0.9}]}`, 0.9, nil},
		{"confidence string", `{"detections":[{"class_name_en":"Apple___healthy","confidence":"0.9"}]}`, 0.9, nil},
		{"confidence garbage", `{"detections":[{"class_name_en":"Apple___healthy","confidence":"high"}]}`, 0, nil},
		{"single with loose fields", `{"id":"x1","class_name_en":"Apple___healthy","confidence":"0.9","bbox":{}}`, 0.9, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse([]byte(tt.body))
			require.NoError(t, err)
			det, ok := resp.Primary()
			require.True(t, ok)
			assert.Equal(t, "Apple___healthy", det.ClassNameEN)
			assert.Nil(t, det.ID)
			assert.InDelta(t, tt.confidence, det.Confidence, 1e-9)
			assert.Equal(t, tt.bbox, det.BBox)
		})
	}
}

func TestPrimaryNilResponse(t *testing.T) {
	var r *Response
	_, ok := r.Primary()
	assert.False(t, ok)
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "single", ShapeSingle.String())
	assert.Equal(t, "list", ShapeList.String())
}

func intPtr(v int) *int { return &v }
