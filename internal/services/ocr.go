//go:build !windows

package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

var ErrEmptyImage = errors.New("image is empty")

// OCRService reads printed labels. The tesseract client is not safe for
// concurrent use, so calls are serialized.
type OCRService struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// OCRResult contains the OCR processing result
type OCRResult struct {
	Text string
}

// NewOCRService creates a new OCR service
func NewOCRService() (*OCRService, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Labels are short sparse text blocks
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &OCRService{
		client: client,
	}, nil
}

// ProcessImage extracts the text printed on a label photo
func (s *OCRService) ProcessImage(imageBytes []byte) (*OCRResult, error) {
	if len(imageBytes) == 0 {
		return nil, ErrEmptyImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SetImageFromBytes(imageBytes); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	return &OCRResult{Text: text}, nil
}

// Close releases OCR resources
func (s *OCRService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
