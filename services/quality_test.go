package services

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgba(levels ...uint8) []byte {
	out := make([]byte, 0, len(levels)*4)
	for _, v := range levels {
		out = append(out, v, v, v, 255)
	}
	return out
}

func TestCheckPixels(t *testing.T) {
	tests := []struct {
		name    string
		pixels  []byte
		verdict QualityVerdict
	}{
		{"uniform gray is blurry", rgba(128, 128, 128, 128, 128, 128), QualityBlurry},
		{"dark with high variance", rgba(0, 40, 0, 40, 0, 40, 0, 40), QualityDark},
		{"mean 120 variance 500 passes", rgba(95, 95, 95, 95, 145, 145, 145, 145, 120, 120), QualityOK},
		{"empty buffer", nil, QualityEmpty},
		{"partial pixel only", []byte{1, 2, 3}, QualityEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.verdict, CheckPixels(tt.pixels).Verdict)
		})
	}
}

func TestCheckPixelsStatistics(t *testing.T) {
	r := CheckPixels(rgba(95, 95, 95, 95, 145, 145, 145, 145, 120, 120))
	assert.InDelta(t, 120, r.Mean, 1e-9)
	assert.InDelta(t, 500, r.Variance, 1e-9)

	dark := CheckPixels(rgba(0, 40, 0, 40))
	assert.InDelta(t, 20, dark.Mean, 1e-9)
	assert.InDelta(t, 400, dark.Variance, 1e-9)
	assert.Equal(t, "Image is too dark. Please improve lighting.", dark.Message())
}

func TestBlurCheckRunsBeforeDarkCheck(t *testing.T) {
	// dark and flat: blur wins
	assert.Equal(t, QualityBlurry, CheckPixels(rgba(10, 10, 10, 10)).Verdict)
}

func TestPrepareFrameReencodesToJPEG(t *testing.T) {
	out, report, err := PrepareFrame(grayPNG(t, 95, 95, 95, 95, 145, 145, 145, 145, 120, 120))
	require.NoError(t, err)
	assert.True(t, report.OK())

	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestPrepareFrameKeepsJPEGBytes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			v := uint8(60)
			if x%2 == 0 {
				v = 200
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))

	out, _, err := PrepareFrame(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}

func TestPrepareFrameRejects(t *testing.T) {
	_, _, err := PrepareFrame(grayPNG(t, 128, 128, 128, 128))
	var qe *QualityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, QualityBlurry, qe.Report.Verdict)

	_, _, err = PrepareFrame([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFrame)
}

// pngHeader returns a PNG holding only a grayscale IHDR chunk for w x h.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&out, binary.BigEndian, uint32(ihdr.Len()-4))
	out.Write(ihdr.Bytes())
	binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return out.Bytes()
}

func TestDecodeFrameRefusesOversizedHeader(t *testing.T) {
	for _, dims := range [][2]uint32{{8000, 8000}, {4097, 4096}, {MaxFramePixels + 1, 1}} {
		_, _, err := PrepareFrame(pngHeader(dims[0], dims[1]))
		assert.ErrorIs(t, err, ErrFrameTooLarge, "%dx%d", dims[0], dims[1])
	}

	// within budget the header alone is not a decodable image
	_, _, err := DecodeFrame(pngHeader(4096, 4096))
	assert.ErrorIs(t, err, ErrUnsupportedFrame)
}
