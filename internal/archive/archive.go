// Package archive keeps timestamped copies of detected IW59 exports.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Compression of archived copies.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "", "none" or "zstd".
func ParseCompression(raw string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("unknown archive compression %q (want none or zstd)", raw)
	}
}

const (
	filePrefix      = "iw59_archive_"
	timestampLayout = "20060102_150405"
	defaultExt      = ".xlsx"
)

// Archiver copies files into Dir. The zero Compression means none.
type Archiver struct {
	Dir         string
	Compression Compression
	now         func() time.Time
}

func New(dir string, compression Compression) *Archiver {
	return &Archiver{Dir: dir, Compression: compression, now: time.Now}
}

// Name returns the archive file name for src taken at t.
func (a *Archiver) Name(src string, t time.Time) string {
	ext := filepath.Ext(src)
	if ext == "" {
		ext = defaultExt
	}
	name := filePrefix + t.Format(timestampLayout) + ext
	if a.Compression == CompressionZstd {
		name += ".zst"
	}
	return name
}

// Archive copies src and returns the new path. The copy keeps the source
// modification time.
func (a *Archiver) Archive(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("archive source %s is a directory", src)
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	dst := filepath.Join(a.Dir, a.Name(src, now()))
	if err := a.copy(src, dst); err != nil {
		return "", err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return "", fmt.Errorf("preserve mtime: %w", err)
	}
	return dst, nil
}

func (a *Archiver) copy(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if a.Compression == CompressionZstd {
		enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := io.Copy(enc, in); err != nil {
			enc.Close()
			return fmt.Errorf("compress %s: %w", src, err)
		}
		return enc.Close()
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
