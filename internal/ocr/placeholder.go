package ocr

import (
	"context"

	"go.uber.org/zap"
)

// SampleMenuText is what PlaceholderOCR returns for every image.
const SampleMenuText = "메뉴 항목 1: 맛있는 파스타 - 12,000원\nMenu Item 2: Special Pizza - $15.00\n음료 3: 콜라 - 2,000원"

// PlaceholderOCR stands in for a real recognizer: it ignores the image and
// returns SampleMenuText. Only enable it for demos and local testing.
type PlaceholderOCR struct {
	logger *zap.Logger
}

// NewPlaceholderOCR returns a PlaceholderOCR.
func NewPlaceholderOCR(logger *zap.Logger) *PlaceholderOCR {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaceholderOCR{logger: logger}
}

// Recognize returns SampleMenuText.
func (p *PlaceholderOCR) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.logger.Warn("placeholder OCR in use, returning sample menu text", zap.Int("image_bytes", len(image)))
	return SampleMenuText, nil
}
