package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	l := New()
	ctx := context.Background()

	tests := []struct {
		name     string
		file     string
		content  string
		wantOK   bool
		wantType string
		contains string
	}{
		{"plain text", "notes.txt", "hello world", true, "txt", "hello world"},
		{"markdown", "README.md", "# Title\n\nBody", true, "md", "# Title"},
		{"html", "page.html", "<html><body><h1>Heading</h1><p>Paragraph text</p></body></html>", true, "html", "Paragraph text"},
		{"unsupported", "image.png", "binary", false, "", ""},
		{"blank", "empty.txt", "  \n ", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			doc, ok, err := l.LoadFile(ctx, path)
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}

			_, err = ulid.Parse(doc.ID)
			assert.NoError(t, err)
			assert.Contains(t, doc.Text, tt.contains)
			assert.NotContains(t, doc.Text, "<p>")
			assert.Equal(t, tt.file, doc.Metadata.String(core.MetaFilename))
			assert.Equal(t, tt.wantType, doc.Metadata.String(core.MetaFileType))
			assert.Equal(t, path, doc.Metadata.String(core.MetaFilePath))
			assert.Equal(t, path, doc.Metadata.String(core.MetaSource))
			size, _ := doc.Metadata.Int(core.MetaFileSize)
			assert.Equal(t, len(tt.content), size)
			assert.Greater(t, doc.Metadata.Timestamp(), 0.0)
		})
	}
}

func TestLoadFileMissingAndTooLarge(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l := New()
	_, ok, err := l.LoadFile(ctx, filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.LoadFile(ctx, dir)
	require.NoError(t, err)
	assert.False(t, ok)

	l.maxSize = 4
	_, ok, err = l.LoadFile(ctx, writeFile(t, dir, "big.txt", "more than four bytes"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFromText(t *testing.T) {
	l := New()

	_, ok := l.FromText("   ", "x")
	assert.False(t, ok)

	a, ok := l.FromText("some pasted text", "")
	require.True(t, ok)
	b, _ := l.FromText("more text", "clip")

	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID, "ids sort by creation")
	assert.Equal(t, "text input", a.Metadata.String(core.MetaFilename))
	assert.Equal(t, SourceText, a.Metadata.String(core.MetaSource))
	assert.Equal(t, "clip", b.Metadata.String(core.MetaFilename))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a/b/notes.TXT"))
	assert.True(t, Supported("index.htm"))
	assert.False(t, Supported("report.pdf"))
	assert.False(t, Supported("Makefile"))
}

func TestFromBytes(t *testing.T) {
	l := New()
	ctx := context.Background()

	doc, ok, err := l.FromBytes(ctx, "page.html", "telegram:page.html", []byte("<p>Uploaded page</p>"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, doc.Text, "Uploaded page")
	assert.Equal(t, "telegram:page.html", doc.Metadata.String(core.MetaFilePath))
	assert.Equal(t, "page.html", doc.Metadata.String(core.MetaFilename))

	_, ok, err = l.FromBytes(ctx, "photo.jpg", "telegram:photo.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.False(t, ok)

	l.maxSize = 2
	_, ok, err = l.FromBytes(ctx, "notes.txt", "telegram:notes.txt", []byte("too long"))
	require.NoError(t, err)
	assert.False(t, ok)
}
