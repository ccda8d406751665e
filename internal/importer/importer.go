// Package importer loads food catalogs from spreadsheets and YAML files.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/storage"
)

// ErrUnsupportedFile is returned for files that are neither XLSX nor YAML.
var ErrUnsupportedFile = errors.New("unsupported import file")

// Report summarizes an import.
type Report struct {
	Created int            `json:"created"`
	Skipped int            `json:"skipped"`
	Issues  []string       `json:"issues,omitempty"`
	Foods   []*models.Food `json:"-"`
}

// Importer writes parsed foods to the store.
type Importer struct {
	store  storage.Storage
	logger *zap.Logger
}

// New returns an Importer.
func New(store storage.Storage, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// ImportFile imports path, choosing the parser by extension.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var (
		inputs []models.FoodInput
		issues []string
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		inputs, issues, err = ParseXLSX(bytes.NewReader(data))
	case ".yaml", ".yml":
		inputs, issues, err = ParseYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	if err != nil {
		return nil, err
	}
	return im.Create(ctx, inputs, issues)
}

// Create stores inputs in one batch. issues are rows the parser already skipped.
func (im *Importer) Create(ctx context.Context, inputs []models.FoodInput, issues []string) (*Report, error) {
	foods := make([]*models.Food, 0, len(inputs))
	for i := range inputs {
		foods = append(foods, inputs[i].ToFood())
	}
	if len(foods) > 0 {
		if err := im.store.BatchCreateFoods(ctx, foods); err != nil {
			return nil, fmt.Errorf("create foods: %w", err)
		}
	}
	for _, issue := range issues {
		im.logger.Warn("import row skipped", zap.String("reason", issue))
	}
	im.logger.Info("catalog import done", zap.Int("created", len(foods)), zap.Int("skipped", len(issues)))
	return &Report{Created: len(foods), Skipped: len(issues), Issues: issues, Foods: foods}, nil
}

// columns maps normalized header names to FoodInput fields.
var columns = map[string]string{
	"name":                   "name",
	"food":                   "name",
	"이름":                     "name",
	"음식":                     "name",
	"description":            "description",
	"설명":                     "description",
	"image_url":              "image_url",
	"ingredients":            "ingredients",
	"재료":                     "ingredients",
	"calories":               "calories",
	"kcal":                   "calories",
	"칼로리":                    "calories",
	"protein":                "protein",
	"carbs":                  "carbs",
	"fat":                    "fat",
	"allergens":              "allergens",
	"알레르기":                   "allergens",
	"translated_name":        "translated_name",
	"translated_description": "translated_description",
	"menu_id":                "menu_id",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// ParseXLSX reads the first sheet. The first row names the columns; unknown
// columns are ignored. Rows without a name or with bad numbers are skipped
// and reported.
func ParseXLSX(r io.Reader) ([]models.FoodInput, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return []models.FoodInput{}, nil, nil
	}

	fields := make([]string, len(rows[0]))
	hasName := false
	for i, h := range rows[0] {
		fields[i] = columns[normalizeHeader(h)]
		if fields[i] == "name" {
			hasName = true
		}
	}
	if !hasName {
		return nil, nil, errors.New("xlsx header has no name column")
	}

	var (
		inputs []models.FoodInput
		issues []string
	)
	for n, row := range rows[1:] {
		line := n + 2
		if blankRow(row) {
			continue
		}
		var in models.FoodInput
		var rowErr error
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			if err := setField(&in, fields[i], strings.TrimSpace(cell)); err != nil {
				rowErr = err
				break
			}
		}
		switch {
		case rowErr != nil:
			issues = append(issues, fmt.Sprintf("row %d: %v", line, rowErr))
		case in.Name == "":
			issues = append(issues, fmt.Sprintf("row %d: missing name", line))
		default:
			inputs = append(inputs, in)
		}
	}
	return inputs, issues, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func setField(in *models.FoodInput, field, v string) error {
	switch field {
	case "name":
		in.Name = v
	case "description":
		in.Description = v
	case "image_url":
		in.ImageURL = v
	case "ingredients":
		in.Ingredients = v
	case "allergens":
		in.Allergens = v
	case "translated_name":
		in.TranslatedName = v
	case "translated_description":
		in.TranslatedDescription = v
	case "menu_id":
		if v == "" {
			return nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("menu_id %q: %w", v, err)
		}
		in.MenuID = &id
	default:
		if v == "" {
			return nil
		}
		x, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			return fmt.Errorf("%s %q: %w", field, v, err)
		}
		switch field {
		case "calories":
			in.Calories = &x
		case "protein":
			in.Protein = &x
		case "carbs":
			in.Carbs = &x
		case "fat":
			in.Fat = &x
		}
	}
	return nil
}

type yamlCatalog struct {
	Foods []models.FoodInput `yaml:"foods"`
}

// ParseYAML reads a document of the form `foods: [{name: ..., ...}]`.
func ParseYAML(r io.Reader) ([]models.FoodInput, []string, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("parse yaml: %w", err)
	}
	inputs := make([]models.FoodInput, 0, len(doc.Foods))
	var issues []string
	for i, in := range doc.Foods {
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			issues = append(issues, fmt.Sprintf("foods[%d]: missing name", i))
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, issues, nil
}
