// Package ocr turns uploaded menu files into raw menu text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

var (
	// ErrOCRUnavailable is returned for images when no ImageOCR is configured.
	ErrOCRUnavailable = errors.New("image OCR unavailable")
	// ErrUnsupportedFormat is returned for binary content of an unknown type.
	ErrUnsupportedFormat = errors.New("unsupported menu format")
)

// ImageOCR recognizes text in a menu photo.
type ImageOCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".heic": true, ".bmp": true, ".gif": true,
}

// IsImage reports whether ext (with leading dot) names an image format.
func IsImage(ext string) bool {
	return imageExts[strings.ToLower(ext)]
}

// Extractor extracts menu text from documents and images.
type Extractor struct {
	image  ImageOCR
	logger *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithImageOCR sets the recognizer used for image uploads.
func WithImageOCR(o ImageOCR) Option {
	return func(e *Extractor) { e.image = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path and returns its menu text.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(ctx, content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on ext, which should include
// the leading dot (e.g. ".pdf"). Text formats keep their line structure so
// each menu entry stays on its own line.
func (e *Extractor) ExtractBytes(ctx context.Context, content []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext = strings.ToLower(ext)
	switch {
	case ext == ".pdf":
		return extractPDF(content)
	case ext == ".docx":
		return extractDOCX(content)
	case ext == ".rtf", ext == ".odt":
		return extractOffice(content)
	case ext == ".txt", ext == ".md":
		return extractPlain(content)
	case IsImage(ext):
		if e.image == nil {
			return "", fmt.Errorf("%w: %s", ErrOCRUnavailable, ext)
		}
		text, err := e.image.Recognize(ctx, content)
		if err != nil {
			return "", fmt.Errorf("recognize image: %w", err)
		}
		e.logger.Debug("image recognized", zap.String("ext", ext), zap.Int("bytes", len(content)), zap.Int("chars", len(text)))
		return text, nil
	default:
		// unknown extension: accept it only if it looks like text
		if utf8.Valid(content) {
			return extractPlain(content)
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
