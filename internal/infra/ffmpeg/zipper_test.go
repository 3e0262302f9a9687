package ffmpeg

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

func writeFrames(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestCreateZipKeepsSelectionOrder(t *testing.T) {
	dir := t.TempDir()
	paths := writeFrames(t, dir, "frame_000090000.jpg", "frame_000010000.jpg")

	out := filepath.Join(dir, "frames.zip")
	require.NoError(t, NewZipCreator().CreateZip(context.Background(), paths, nil, out))

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 2)
	assert.Equal(t, "001_frame_000090000.jpg", r.File[0].Name)
	assert.Equal(t, "002_frame_000010000.jpg", r.File[1].Name)
	assert.Equal(t, zip.Store, r.File[0].Method)
}

func TestCreateZipWritesManifest(t *testing.T) {
	dir := t.TempDir()
	paths := writeFrames(t, dir, "frame_000001000.png")
	manifest := []byte(`{"frames":[{"entry":"001_frame_000001000.png"}]}`)

	out := filepath.Join(dir, "frames.zip")
	require.NoError(t, NewZipCreator().CreateZip(context.Background(), paths, manifest, out))

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 2)
	last := r.File[1]
	assert.Equal(t, port.ManifestName, last.Name)
	rc, err := last.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.JSONEq(t, string(manifest), string(got))
}

func TestCompression(t *testing.T) {
	assert.Equal(t, zip.Store, compression("a/frame.JPG"))
	assert.Equal(t, zip.Store, compression("frame.png"))
	assert.Equal(t, zip.Deflate, compression("frame.bmp"))
}

func TestCreateZipMissingFile(t *testing.T) {
	dir := t.TempDir()
	err := NewZipCreator().CreateZip(context.Background(), []string{filepath.Join(dir, "missing.jpg")}, nil, filepath.Join(dir, "out.zip"))
	assert.Error(t, err)
}

func TestCreateZipCancelled(t *testing.T) {
	dir := t.TempDir()
	paths := writeFrames(t, dir, "a.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewZipCreator().CreateZip(ctx, paths, nil, filepath.Join(dir, "out.zip"))
	assert.ErrorIs(t, err, context.Canceled)
}
