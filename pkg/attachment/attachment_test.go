package attachment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
)

func TestResolveURL(t *testing.T) {
	r := NewResolver(t.TempDir())

	ref, err := r.Resolve(jobconfig.AttachmentURL, "  https://arxiv.org/pdf/1234.pdf ", nil)
	require.NoError(t, err)
	assert.Equal(t, jobconfig.AttachmentURL, ref.Kind)
	assert.Equal(t, "https://arxiv.org/pdf/1234.pdf", ref.Location)

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, ref, cur)
	assert.Empty(t, r.Created())
}

func TestResolveURLRejects(t *testing.T) {
	r := NewResolver(t.TempDir())
	for _, raw := range []string{"", "   ", "not a url", "/relative/path.pdf"} {
		_, err := r.Resolve(jobconfig.AttachmentURL, raw, nil)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, jobconfig.ErrInvalidInput), raw)
	}
	_, ok := r.Current()
	assert.False(t, ok)
}

func TestResolveFileCreatesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir)

	first, err := r.Resolve(jobconfig.AttachmentFile, "paper.pdf", []byte("one"))
	require.NoError(t, err)
	second, err := r.Resolve(jobconfig.AttachmentFile, "paper.pdf", []byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Location, second.Location)
	assert.Equal(t, dir, filepath.Dir(first.Location))
	assert.Equal(t, ".pdf", filepath.Ext(first.Location))
	assert.Equal(t, "paper.pdf", first.Name)

	data, err := os.ReadFile(first.Location)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	data, err = os.ReadFile(second.Location)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	assert.Equal(t, []string{first.Location, second.Location}, r.Created())

	cur, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, second, cur)
}

func TestResolveFileRejects(t *testing.T) {
	r := NewResolver(t.TempDir())

	_, err := r.Resolve(jobconfig.AttachmentFile, "paper.pdf", nil)
	var verr *jobconfig.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "attachment.file", verr.Field)

	_, err = r.Resolve(jobconfig.AttachmentFile, "notes.txt", []byte("x"))
	require.ErrorAs(t, err, &verr)

	_, err = r.Resolve("floppy", "x", nil)
	require.ErrorAs(t, err, &verr)

	assert.Empty(t, r.Created())
}

func TestResolveFileDocxCaseInsensitive(t *testing.T) {
	r := NewResolver(t.TempDir())
	ref, err := r.Resolve(jobconfig.AttachmentFile, "Thesis.DOCX", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, ".docx", filepath.Ext(ref.Location))
}

func TestClearKeepsFile(t *testing.T) {
	r := NewResolver(t.TempDir())
	ref, err := r.Resolve(jobconfig.AttachmentFile, "a.pdf", []byte("x"))
	require.NoError(t, err)

	r.Clear()
	_, ok := r.Current()
	assert.False(t, ok)

	_, err = os.Stat(ref.Location)
	assert.NoError(t, err)
}

func TestResolveFileMissingDir(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "gone"))
	_, err := r.Resolve(jobconfig.AttachmentFile, "a.pdf", []byte("x"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, jobconfig.ErrInvalidInput))
}
