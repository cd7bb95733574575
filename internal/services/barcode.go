package services

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var ErrOCRUnavailable = errors.New("label scanning is not available")

// digitRun matches digits optionally split by single spaces or hyphens,
// the way numbers are printed under a barcode
var digitRun = regexp.MustCompile(`\d(?:[ \-]?\d)+`)

// ExtractBarcodeCandidates returns the distinct 8 or 13 digit numbers found
// in text, in order of appearance
func ExtractBarcodeCandidates(text string) []string {
	seen := make(map[string]bool)
	var codes []string

	for _, line := range strings.Split(text, "\n") {
		for _, match := range digitRun.FindAllString(line, -1) {
			joined := strings.NewReplacer(" ", "", "-", "").Replace(match)
			parts := []string{joined}
			// Two codes printed next to each other
			if !IsBarcode(joined) {
				parts = strings.FieldsFunc(match, func(r rune) bool { return r == ' ' || r == '-' })
			}
			for _, code := range parts {
				if !IsBarcode(code) || seen[code] {
					continue
				}
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}

	return codes
}

// ValidGTINChecksum reports whether the last digit of an EAN-8 or EAN-13
// code matches its check digit
func ValidGTINChecksum(code string) bool {
	if !IsBarcode(code) {
		return false
	}

	sum := 0
	weight := 3
	for i := len(code) - 2; i >= 0; i-- {
		sum += int(code[i]-'0') * weight
		weight = 4 - weight
	}

	check := (10 - sum%10) % 10
	return int(code[len(code)-1]-'0') == check
}

// TextReader extracts text from an image
type TextReader interface {
	ProcessImage(imageBytes []byte) (*OCRResult, error)
}

// ItemLookuper finds an owner's item by external id
type ItemLookuper interface {
	LookupItem(ctx context.Context, ownerID int, externalID string) models.ItemLookup
}

// LabelScanService reads external ids from label photos
type LabelScanService struct {
	reader TextReader
	items  ItemLookuper
}

// NewLabelScanService creates a label scanner. A nil reader disables scanning.
func NewLabelScanService(reader TextReader, items ItemLookuper) *LabelScanService {
	return &LabelScanService{reader: reader, items: items}
}

// Scan reads a label photo and reports each barcode candidate together with
// whether the owner already registered it
func (s *LabelScanService) Scan(ctx context.Context, ownerID int, image []byte) (*models.LabelScanResponse, error) {
	if s.reader == nil {
		return nil, ErrOCRUnavailable
	}

	result, err := s.reader.ProcessImage(image)
	if err != nil {
		return nil, err
	}

	resp := &models.LabelScanResponse{
		Text:       result.Text,
		Candidates: []models.BarcodeCandidate{},
	}

	for _, code := range ExtractBarcodeCandidates(result.Text) {
		candidate := models.BarcodeCandidate{
			Code:          code,
			ChecksumValid: ValidGTINChecksum(code),
		}

		lookup := s.items.LookupItem(ctx, ownerID, code)
		switch lookup.State {
		case models.LookupFound:
			candidate.AlreadyRegistered = true
			candidate.ItemID = &lookup.Item.ID
		case models.LookupFailed:
			log.Printf("label scan: lookup of %s failed: %v", code, lookup.Err)
		case models.LookupNotFound:
		}

		resp.Candidates = append(resp.Candidates, candidate)
	}

	return resp, nil
}
