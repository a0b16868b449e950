// Package ocr defines the text recognition boundary used by document
// extraction. Engines are swappable; the default is Tesseract.
package ocr

import (
	"context"
	"errors"
)

var ErrNoImage = errors.New("ocr: empty image")

// Input is one image to recognize.
type Input struct {
	ID        string
	Image     []byte
	Languages []string
}

// Result holds the recognized text of one Input.
type Result struct {
	InputID    string
	PlainText  string
	Confidence float64
}

// Engine recognizes text in images. Implementations must return ctx.Err()
// promptly once ctx is done.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, in Input) (Result, error)

func (f EngineFunc) Name() string { return "func" }

func (f EngineFunc) Recognize(ctx context.Context, in Input) (Result, error) { return f(ctx, in) }
