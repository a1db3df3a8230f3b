package history

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/phytoguard/pkg/diagnosis"
)

func rec(id string) diagnosis.Record {
	return diagnosis.Record{ID: id, Name: "n" + id, Status: diagnosis.StatusInfected}
}

func ids(recs []diagnosis.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestAppendKeepsOrderNewestFirst(t *testing.T) {
	s := New()
	s.Append(rec("1"))
	s.Append(rec("2"))
	s.Append(rec("3"))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"3", "2", "1"}, ids(s.List()))
}

func TestToggleArchived(t *testing.T) {
	s := New()
	s.Append(rec("1"))
	s.Append(rec("2"))

	archived, err := s.ToggleArchived("1")
	require.NoError(t, err)
	assert.True(t, archived)

	assert.Equal(t, []string{"2"}, ids(s.Active()))
	assert.Equal(t, []string{"1"}, ids(s.Archived()))
	assert.Equal(t, []string{"2", "1"}, ids(s.List()), "toggling never reorders")

	archived, err = s.ToggleArchived("1")
	require.NoError(t, err)
	assert.False(t, archived)

	_, err = s.ToggleArchived("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet(t *testing.T) {
	s := New()
	s.Append(rec("a"))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "na", got.Name)

	_, err = s.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoadRoundTripPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	s := New()
	s.Append(rec("1"))
	s.Append(rec("2"))
	_, _ = s.ToggleArchived("1")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(loaded.List()))
	assert.Equal(t, []string{"1"}, ids(loaded.Archived()))

	loaded.Append(rec("3"))
	assert.Equal(t, []string{"3", "2", "1"}, ids(loaded.List()))
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(filepath.Join(dir, "none.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{oops"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(rec("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
