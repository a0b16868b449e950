package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Thresholds of the capture quality gate. Variance is a crude focus proxy:
// a high-contrast but blurry frame can still pass.
const (
	BlurVarianceThreshold = 100
	DarkMeanThreshold     = 50
)

// MaxFramePixels bounds the decoded size of a frame. Dimensions are read from
// the header before any pixel buffer is allocated.
const MaxFramePixels = 4096 * 4096

// JPEGQuality matches the quality browsers use when exporting capture frames.
const JPEGQuality = 90

type QualityVerdict string

const (
	QualityOK     QualityVerdict = "ok"
	QualityBlurry QualityVerdict = "blurry"
	QualityDark   QualityVerdict = "dark"
	QualityEmpty  QualityVerdict = "empty"
)

var qualityMessages = map[QualityVerdict]string{
	QualityOK:     "Image quality is good",
	QualityBlurry: "Image is too blurry. Please ensure the document is in focus.",
	QualityDark:   "Image is too dark. Please improve lighting.",
	QualityEmpty:  "Captured image is empty. Please try again.",
}

type QualityReport struct {
	Verdict  QualityVerdict `json:"verdict"`
	Mean     float64        `json:"mean"`
	Variance float64        `json:"variance"`
}

func (r QualityReport) OK() bool { return r.Verdict == QualityOK }

func (r QualityReport) Message() string { return qualityMessages[r.Verdict] }

// CheckPixels grades an RGBA buffer by the population mean and variance of
// its per-pixel gray level (R+G+B)/3.
func CheckPixels(rgba []byte) QualityReport {
	n := len(rgba) / 4
	if n == 0 {
		return QualityReport{Verdict: QualityEmpty}
	}
	var sum, sumSquare float64
	for i := 0; i+3 < len(rgba); i += 4 {
		gray := (float64(rgba[i]) + float64(rgba[i+1]) + float64(rgba[i+2])) / 3
		sum += gray
		sumSquare += gray * gray
	}
	mean := sum / float64(n)
	variance := sumSquare/float64(n) - mean*mean

	report := QualityReport{Verdict: QualityOK, Mean: mean, Variance: variance}
	switch {
	case variance < BlurVarianceThreshold:
		report.Verdict = QualityBlurry
	case mean < DarkMeanThreshold:
		report.Verdict = QualityDark
	}
	return report
}

// CheckImage grades any decoded image.
func CheckImage(img image.Image) QualityReport {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return CheckPixels(rgba.Pix)
}

var (
	ErrUnsupportedFrame = errors.New("unsupported image format")
	ErrFrameTooLarge    = errors.New("image dimensions too large")
)

// DecodeFrame decodes a JPEG, PNG or WebP frame and reports its format.
// Frames whose header declares more than MaxFramePixels are refused unread.
func DecodeFrame(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFrame, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxFramePixels/cfg.Height {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFrame, err)
	}
	return img, format, nil
}

func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrepareFrame runs the quality gate on a captured frame and returns JPEG
// bytes ready for upload. JPEG input is kept as-is.
func PrepareFrame(data []byte) ([]byte, QualityReport, error) {
	img, format, err := DecodeFrame(data)
	if err != nil {
		return nil, QualityReport{}, err
	}
	report := CheckImage(img)
	if !report.OK() {
		return nil, report, &QualityError{Report: report}
	}
	if format == "jpeg" {
		return data, report, nil
	}
	out, err := EncodeJPEG(img)
	if err != nil {
		return nil, report, fmt.Errorf("encode jpeg: %w", err)
	}
	return out, report, nil
}
