package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("leaf.JPG"))
	assert.True(t, IsImageFile("/tmp/capture.webp"))
	assert.True(t, IsImageFile("scan.tiff"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "photo", SanitizeFilename("  photo. "))
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("/in/apple leaf.png", "/out", "_letterbox", "jpg")
	assert.Equal(t, filepath.Join("/out", "apple leaf_letterbox.jpg"), got)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")
	assert.False(t, FileExists(path))
	assert.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}
