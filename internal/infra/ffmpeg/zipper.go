package ffmpeg

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"
)

// ZipCreator packs selected frames, plus an optional manifest, into one archive.
type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

func (z *ZipCreator) CreateZip(ctx context.Context, filePaths []string, manifest []byte, outputPath string) (err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	defer func() {
		if err != nil {
			zw.Close()
		}
	}()

	for i, fp := range filePaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFrame(zw, fp, port.EntryName(i, fp)); err != nil {
			return fmt.Errorf("add %s to zip: %w", fp, err)
		}
	}

	if manifest != nil {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     port.ManifestName,
			Method:   zip.Deflate,
			Modified: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("add manifest: %w", err)
		}
		if _, err := w.Write(manifest); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

func addFrame(zw *zip.Writer, path, entryName string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName
	header.Method = compression(path)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// compression stores already-compressed image formats as is.
func compression(path string) uint16 {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return zip.Store
	}
	return zip.Deflate
}
