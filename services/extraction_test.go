package services

import (
	"context"
	"errors"
	"testing"

	"kyc-verification-server/ocr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"labelled upper case", "Name: JOHN SMITH", "JOHN SMITH"},
		{"labelled title case", "GOVT OF INDIA\nName: Priya Kumari Sharma\nDOB: 01/01/1990", "Priya Kumari Sharma"},
		{"label noise is cut", "Name: JOHN SMITH DOB 01/01/1990", "JOHN SMITH"},
		{"caps before DOB", "income tax department RAVI KUMAR DOB 12/02/1985", "RAVI KUMAR"},
		{"capitalised run", "issued to Anita Desai Rao on request", "Anita Desai Rao"},
		{"nothing name like", "1234 5678 9012", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseName(tt.text))
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"label up to pin", "Address: 12 Lake View, Pune Pin 411001", "12 Lake View, Pune"},
		{"keyword sentence", "Monthly statement. 42 Station Road, Nagpur. Amount due", "42 Station Road, Nagpur"},
		{"first three lines", "Acme Utilities Ltd\nok\nCustomer 998877\nBill Period March\nTotal Payable 420", "Acme Utilities Ltd, Customer 998877, Bill Period March"},
		{"empty", "  \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAddress(tt.text))
		})
	}
}

func TestParseDocumentNumber(t *testing.T) {
	assert.Equal(t, "123456789012", ParseDocumentNumber("Aadhaar 1234 5678 9012"))
	assert.Equal(t, "ABCDE1234F", ParseDocumentNumber("Permanent Account Number ABCDE 1234F"))
	assert.Equal(t, "", ParseDocumentNumber("no identifier here 12345"))
}

func textEngine(texts map[string]string, fail map[string]error) ocr.Engine {
	return ocr.EngineFunc(func(ctx context.Context, in ocr.Input) (ocr.Result, error) {
		if err := ctx.Err(); err != nil {
			return ocr.Result{}, err
		}
		key := string(in.Image)
		if err := fail[key]; err != nil {
			return ocr.Result{}, err
		}
		return ocr.Result{InputID: in.ID, PlainText: texts[key]}, nil
	})
}

func TestExtractIsolatesFailures(t *testing.T) {
	docs := newFakeDocuments()
	docs.objects["id.jpg"] = []byte("identity")
	docs.objects["addr.jpg"] = []byte("address")

	engine := textEngine(
		map[string]string{"identity": "Name: JOHN SMITH\nABCDE1234F"},
		map[string]error{"address": errors.New("engine crashed")},
	)
	out, err := NewExtractor(engine, docs, nil, nil).Extract(context.Background(), "id.jpg", "addr.jpg", "")
	require.NoError(t, err)

	assert.Equal(t, "JOHN SMITH", out.Name)
	assert.Equal(t, "ABCDE1234F", out.DocumentNumber)
	assert.Equal(t, PlaceholderAddress, out.Address)
	assert.Equal(t, []string{"address"}, out.NeedsManualEntry)
	assert.Equal(t, ExtractionNotice, out.Notice)
}

func TestExtractKeepsKnownDocumentNumber(t *testing.T) {
	docs := newFakeDocuments()
	docs.objects["id.jpg"] = []byte("identity")
	docs.objects["addr.jpg"] = []byte("address")
	engine := textEngine(map[string]string{
		"identity": "Name: JOHN SMITH 999988887777",
		"address":  "Address: 7 Hill Road, Mumbai PIN 400001",
	}, nil)

	out, err := NewExtractor(engine, docs, nil, nil).Extract(context.Background(), "id.jpg", "addr.jpg", "ABCDE1234F")
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", out.DocumentNumber)
	assert.Equal(t, "7 Hill Road, Mumbai", out.Address)
	assert.Empty(t, out.NeedsManualEntry)
	assert.Empty(t, out.Notice)
}

func TestExtractPlaceholdersWhenNothingMatches(t *testing.T) {
	out, err := NewExtractor(textEngine(nil, nil), newFakeDocuments(), nil, nil).Extract(context.Background(), "missing", "missing", "")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderName, out.Name)
	assert.Equal(t, PlaceholderAddress, out.Address)
	assert.Equal(t, PlaceholderDocumentNumber, out.DocumentNumber)
	assert.Len(t, out.NeedsManualEntry, 3)
	for _, v := range []string{out.Name, out.Address, out.DocumentNumber} {
		assert.True(t, IsPlaceholder(v))
	}
}

func TestExtractCancelled(t *testing.T) {
	docs := newFakeDocuments()
	docs.objects["id.jpg"] = []byte("identity")
	docs.objects["addr.jpg"] = []byte("address")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(textEngine(nil, nil), docs, nil, nil).Extract(ctx, "id.jpg", "addr.jpg", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractDiscardsLowConfidencePass(t *testing.T) {
	docs := newFakeDocuments()
	docs.objects["id.jpg"] = []byte("identity")
	docs.objects["addr.jpg"] = []byte("address")

	engine := ocr.EngineFunc(func(ctx context.Context, in ocr.Input) (ocr.Result, error) {
		switch string(in.Image) {
		case "identity":
			return ocr.Result{InputID: in.ID, PlainText: "Name: JOHN SMITH", Confidence: 0.92}, nil
		default:
			// garbage read off a glare-washed frame
			return ocr.Result{InputID: in.ID, PlainText: "Address: ll1 ,,r0ad Pin", Confidence: 0.12}, nil
		}
	})
	out, err := NewExtractor(engine, docs, nil, nil).Extract(context.Background(), "id.jpg", "addr.jpg", "ABCDE1234F")
	require.NoError(t, err)
	assert.Equal(t, "JOHN SMITH", out.Name)
	assert.Equal(t, PlaceholderAddress, out.Address)
	assert.Equal(t, []string{"address"}, out.NeedsManualEntry)
	assert.Equal(t, ExtractionNotice, out.Notice)
}
