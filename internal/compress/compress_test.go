package compress

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyank/cloudvault/internal/logging"
	"github.com/priyank/cloudvault/internal/models"
)

func newCompressor() *Compressor {
	return New(DefaultOptions(), logging.Nop{})
}

// noisyPNG builds a large PNG that compresses poorly as PNG but well as a
// downscaled JPEG.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompress_SkipsNonImage(t *testing.T) {
	in := &models.IncomingFile{
		Name:     "doc.pdf",
		MimeType: "application/pdf",
		Size:     500 * 1024,
		Bytes:    bytes.Repeat([]byte{1}, 500*1024),
	}
	out := newCompressor().Compress(context.Background(), in)
	assert.Same(t, in, out)
}

func TestCompress_SkipsTinyImage(t *testing.T) {
	in := &models.IncomingFile{
		Name:     "icon.png",
		MimeType: "image/png",
		Size:     10 * 1024,
		Bytes:    bytes.Repeat([]byte{1}, 10*1024),
	}
	out := newCompressor().Compress(context.Background(), in)
	assert.Same(t, in, out)
}

func TestCompress_UndecodableImageReturnsOriginal(t *testing.T) {
	in := &models.IncomingFile{
		Name:     "broken.png",
		MimeType: "image/png",
		Size:     200 * 1024,
		Bytes:    bytes.Repeat([]byte{0xde, 0xad}, 100*1024),
	}
	out := newCompressor().Compress(context.Background(), in)
	assert.Same(t, in, out)
}

func TestCompress_ShrinksLargeImage(t *testing.T) {
	data := noisyPNG(t, 1920, 1080)
	in := &models.IncomingFile{
		Name:     "photo.png",
		MimeType: "image/png",
		Size:     int64(len(data)),
		Bytes:    data,
	}
	require.Greater(t, in.Size, int64(100*1024))

	out := newCompressor().Compress(context.Background(), in)
	assert.Less(t, out.Size, in.Size)
	assert.Equal(t, "image/jpeg", out.MimeType)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, int64(len(out.Bytes)), out.Size)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantW, wantH int
	}{
		{"already small", 640, 480, 640, 480},
		{"wide", 2560, 1440, 1280, 720},
		{"tall", 720, 2880, 180, 720},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := fitWithin(tc.w, tc.h, 1280, 720)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}
