// Package compress shrinks image payloads before upload. Compression never
// fails the pipeline: on decode errors, unsupported formats, or timeout the
// original file is returned unchanged.
package compress

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
)

// Options control the compression policy.
type Options struct {
	Quality       int     // JPEG quality for the re-encode
	MaxWidth      int     // output bounding box
	MaxHeight     int
	MinSizeBytes  int64   // files below this are not worth the CPU
	MinReduction  float64 // keep the result only if it shrinks at least this much
	Budget        time.Duration
}

// DefaultOptions mirrors the shipped policy: quality 60, 1280x720 box,
// 100KB floor, 10% minimum reduction, 10s budget.
func DefaultOptions() Options {
	return Options{
		Quality:      60,
		MaxWidth:     1280,
		MaxHeight:    720,
		MinSizeBytes: 100 * 1024,
		MinReduction: 0.10,
		Budget:       10 * time.Second,
	}
}

// Compressor re-encodes large images as bounded JPEGs.
type Compressor struct {
	opts Options
	log  logging.Logger
}

func New(opts Options, log logging.Logger) *Compressor {
	return &Compressor{opts: opts, log: log}
}

// Compress returns a smaller rendition of file, or file itself when the
// input is not an image, is already small, fails to decode, or the result
// does not clear the minimum reduction ratio. The returned file is never
// larger than the input.
func (c *Compressor) Compress(ctx context.Context, file *models.IncomingFile) *models.IncomingFile {
	if !strings.HasPrefix(file.MimeType, "image/") {
		return file
	}
	if file.Size < c.opts.MinSizeBytes {
		return file
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Budget)
	defer cancel()

	type outcome struct {
		out *models.IncomingFile
	}
	done := make(chan outcome, 1)

	go func() {
		done <- outcome{out: c.reencode(ctx, file)}
	}()

	select {
	case <-ctx.Done():
		c.log.Warn(ctx, "compression timed out, using original", "name", file.Name)
		return file
	case o := <-done:
		return o.out
	}
}

func (c *Compressor) reencode(ctx context.Context, file *models.IncomingFile) *models.IncomingFile {
	src, _, err := image.Decode(bytes.NewReader(file.Bytes))
	if err != nil {
		c.log.Warn(ctx, "image decode failed, using original", "name", file.Name, "error", err)
		return file
	}

	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), c.opts.MaxWidth, c.opts.MaxHeight)

	var out image.Image = src
	if w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: c.opts.Quality}); err != nil {
		c.log.Warn(ctx, "jpeg encode failed, using original", "name", file.Name, "error", err)
		return file
	}

	reduction := 1 - float64(buf.Len())/float64(file.Size)
	if reduction < c.opts.MinReduction {
		c.log.Debug(ctx, "compression not effective, using original",
			"name", file.Name, "reduction", reduction)
		return file
	}

	c.log.Info(ctx, "image compressed",
		"name", file.Name,
		"before_bytes", file.Size,
		"after_bytes", buf.Len())

	return &models.IncomingFile{
		Name:     file.Name,
		MimeType: "image/jpeg",
		Size:     int64(buf.Len()),
		Bytes:    buf.Bytes(),
	}
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH), preserving
// aspect ratio. Dimensions are rounded down to even numbers.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w > maxW {
		h = h * maxW / w
		w = maxW
	}
	if h > maxH {
		w = w * maxH / h
		h = maxH
	}
	w = w / 2 * 2
	h = h / 2 * 2
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}
