package tesseract

import (
	"context"
	"fmt"
	"strings"

	"kyc-verification-server/ocr"

	"github.com/otiai10/gosseract/v2"
)

// Engine implements ocr.Engine on top of a gosseract client. Every call uses
// its own client, so concurrent recognitions do not share state.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func New(languages ...string) *Engine {
	return &Engine{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

type outcome struct {
	res ocr.Result
	err error
}

// Recognize runs OCR in the background and returns ctx.Err() as soon as ctx
// is done. A result that arrives after cancellation is dropped.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if len(in.Image) == 0 {
		return ocr.Result{}, ocr.ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.recognize(in)
		done <- outcome{res, err}
	}()
	select {
	case <-ctx.Done():
		return ocr.Result{}, ctx.Err()
	case o := <-done:
		return o.res, o.err
	}
}

func (e *Engine) recognize(in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 {
		langs = e.languages
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Result{
		InputID:    in.ID,
		PlainText:  strings.TrimSpace(text),
		Confidence: averageConfidence(c),
	}, nil
}

func averageConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
