package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"kyc-verification-server/ocr"

	"github.com/kataras/golog"
	"golang.org/x/exp/slices"
)

const (
	PlaceholderName           = "Unable to extract name"
	PlaceholderAddress        = "Unable to extract address"
	PlaceholderDocumentNumber = "Unable to extract document number"

	ExtractionNotice = "Unable to extract some details from documents. Please verify and enter manually."
)

// IsPlaceholder reports whether v is one of the extraction placeholders.
func IsPlaceholder(v string) bool {
	switch strings.TrimSpace(v) {
	case PlaceholderName, PlaceholderAddress, PlaceholderDocumentNumber:
		return true
	}
	return false
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	nameWord           = `(?:[A-Z][a-z]+|[A-Z]{2,})\b`
	labeledNameRe      = regexp.MustCompile(`(?:Name|NAME|name)\s*:?\s*(` + nameWord + `(?:\s+` + nameWord + `)*)`)
	capsBeforeDOBRe    = regexp.MustCompile(`([A-Z][A-Z\s]+?)\s*(?:DOB|(?i:date))`)
	capitalizedWordRe  = regexp.MustCompile(`^[A-Z][a-z]+$`)
	labeledAddressRe   = regexp.MustCompile(`(?s)(?:Address|ADDRESS|address)\s*:?\s*(.+?)(?:Pin|PIN|Pincode|PINCODE|$)`)
	sentenceSplitRe    = regexp.MustCompile(`[.;]`)
	nationalIDRe       = regexp.MustCompile(`\d{12}`)
	panShapedRe        = regexp.MustCompile(`[A-Z]{5}\d{4}[A-Z]`)
	addressKeywords    = []string{"street", "road", "city", "pin", "house", "flat", "building"}
	trailingNameTokens = []string{"DOB", "DATE", "FATHER", "FATHERS", "MOTHER", "GENDER", "MALE", "FEMALE", "YEAR", "BIRTH", "SEX", "ADDRESS", "NAME"}
)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// trimNameNoise drops label words that OCR glues onto the end of a name.
func trimNameNoise(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		if slices.Contains(trailingNameTokens, strings.ToUpper(strings.Trim(w, ":'"))) {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

// ParseName guesses a person's name from identity document text.
func ParseName(text string) string {
	clean := normalizeWhitespace(text)

	for _, re := range []*regexp.Regexp{labeledNameRe, capsBeforeDOBRe} {
		if m := re.FindStringSubmatch(clean); m != nil {
			if name := trimNameNoise(m[1]); name != "" {
				return name
			}
		}
	}

	var run []string
	for _, w := range strings.Split(clean, " ") {
		if len(w) > 2 && capitalizedWordRe.MatchString(w) {
			run = append(run, w)
			if len(run) == 3 {
				break
			}
			continue
		}
		if len(run) >= 2 {
			break
		}
		run = run[:0]
	}
	if len(run) >= 2 {
		return strings.Join(run, " ")
	}
	return ""
}

// ParseAddress guesses a postal address from address proof text.
func ParseAddress(text string) string {
	clean := normalizeWhitespace(text)

	if m := labeledAddressRe.FindStringSubmatch(clean); m != nil {
		if addr := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), ",")); addr != "" {
			return addr
		}
	}

	for _, sentence := range sentenceSplitRe.Split(clean, -1) {
		lower := strings.ToLower(sentence)
		for _, kw := range addressKeywords {
			if strings.Contains(lower, kw) {
				return strings.TrimSpace(sentence)
			}
		}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); len(line) > 5 {
			lines = append(lines, line)
			if len(lines) == 3 {
				break
			}
		}
	}
	return strings.Join(lines, ", ")
}

// ParseDocumentNumber returns the first 12 digit national id or PAN shaped
// identifier in text, or "".
func ParseDocumentNumber(text string) string {
	compact := whitespaceRe.ReplaceAllString(text, "")
	if m := nationalIDRe.FindString(compact); m != "" {
		return m
	}
	return panShapedRe.FindString(compact)
}

// ExtractedData is the best-effort result of reading both documents. Fields
// that could not be read hold a placeholder and are listed in
// NeedsManualEntry.
type ExtractedData struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	DocumentNumber   string   `json:"document_number"`
	NeedsManualEntry []string `json:"needs_manual_entry"`
	Notice           string   `json:"notice,omitempty"`
}

// MinOCRConfidence is the mean word confidence below which a pass is treated
// as unreadable. Engines that report no confidence (zero) are trusted.
const MinOCRConfidence = 0.3

var errLowConfidence = errors.New("ocr confidence too low")

type DocumentLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Extractor reads identity and address documents with an OCR engine.
type Extractor struct {
	engine    ocr.Engine
	loader    DocumentLoader
	languages []string
	log       *golog.Logger
}

func NewExtractor(engine ocr.Engine, loader DocumentLoader, languages []string, log *golog.Logger) *Extractor {
	if log == nil {
		log = golog.Default
	}
	return &Extractor{engine: engine, loader: loader, languages: languages, log: log}
}

func (e *Extractor) readText(ctx context.Context, id, ref string) (string, error) {
	data, err := e.loader.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	res, err := e.engine.Recognize(ctx, ocr.Input{ID: id, Image: data, Languages: e.languages})
	if err != nil {
		return "", err
	}
	if res.Confidence > 0 && res.Confidence < MinOCRConfidence {
		return "", fmt.Errorf("%w: %.2f", errLowConfidence, res.Confidence)
	}
	return res.PlainText, nil
}

// Extract runs one OCR pass per document concurrently. A failing pass only
// blanks its own fields. The error is non-nil only when ctx is done.
func (e *Extractor) Extract(ctx context.Context, identityRef, addressRef, knownDocNumber string) (ExtractedData, error) {
	var (
		wg                   sync.WaitGroup
		name, docNumber      string
		address              string
		identityErr, addrErr error
	)
	docNumber = knownDocNumber

	wg.Add(2)
	go func() {
		defer wg.Done()
		text, err := e.readText(ctx, "identity", identityRef)
		if err != nil {
			identityErr = err
			return
		}
		name = ParseName(text)
		if knownDocNumber == "" {
			docNumber = ParseDocumentNumber(text)
		}
	}()
	go func() {
		defer wg.Done()
		text, err := e.readText(ctx, "address", addressRef)
		if err != nil {
			addrErr = err
			return
		}
		address = ParseAddress(text)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return ExtractedData{}, err
	}
	if identityErr != nil {
		e.log.Warnf("extract identity document: %v", identityErr)
	}
	if addrErr != nil {
		e.log.Warnf("extract address document: %v", addrErr)
	}

	out := ExtractedData{Name: name, Address: address, DocumentNumber: docNumber}
	if out.Name == "" {
		out.Name = PlaceholderName
		out.NeedsManualEntry = append(out.NeedsManualEntry, "name")
	}
	if out.Address == "" {
		out.Address = PlaceholderAddress
		out.NeedsManualEntry = append(out.NeedsManualEntry, "address")
	}
	if out.DocumentNumber == "" {
		out.DocumentNumber = PlaceholderDocumentNumber
		out.NeedsManualEntry = append(out.NeedsManualEntry, "document_number")
	}
	if len(out.NeedsManualEntry) > 0 {
		out.Notice = ExtractionNotice
	}
	return out, nil
}
