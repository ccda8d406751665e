package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/wtm/internal/storage"
)

func xlsxBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "wtm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestParseXLSX(t *testing.T) {
	data := xlsxBytes(t, [][]interface{}{
		{"Name", "Ingredients", "Calories", "Color", "Translated Name"},
		{"김치찌개", "kimchi, pork", "450", "red", "Kimchi Stew"},
		{"", "rice", "", "", ""},
		{"콜라", "", "1,200.5", "", "Cola"},
		{"Pizza", "", "lots", "", ""},
	})

	inputs, issues, err := ParseXLSX(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Equal(t, "김치찌개", inputs[0].Name)
	assert.Equal(t, "kimchi, pork", inputs[0].Ingredients)
	assert.Equal(t, "Kimchi Stew", inputs[0].TranslatedName)
	require.NotNil(t, inputs[0].Calories)
	assert.Equal(t, 450.0, *inputs[0].Calories)

	assert.Equal(t, "콜라", inputs[1].Name)
	require.NotNil(t, inputs[1].Calories)
	assert.Equal(t, 1200.5, *inputs[1].Calories)
	assert.Nil(t, inputs[1].Protein)

	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "row 3")
	assert.Contains(t, issues[1], "row 5")
}

func TestParseXLSX_koreanHeaders(t *testing.T) {
	data := xlsxBytes(t, [][]interface{}{
		{"이름", "재료"},
		{"된장찌개", "두부"},
	})
	inputs, issues, err := ParseXLSX(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, inputs, 1)
	assert.Equal(t, "두부", inputs[0].Ingredients)
}

func TestParseXLSX_noNameColumn(t *testing.T) {
	data := xlsxBytes(t, [][]interface{}{{"price"}, {"1000"}})
	_, _, err := ParseXLSX(bytes.NewReader(data))
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	doc := `
foods:
  - name: Kimchi Stew
    ingredients: kimchi, pork
    calories: 450
    menu_id: 3
  - name: "  "
  - name: Cola
    translated_name: 콜라
`
	inputs, issues, err := ParseYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "Kimchi Stew", inputs[0].Name)
	require.NotNil(t, inputs[0].MenuID)
	assert.Equal(t, int64(3), *inputs[0].MenuID)
	assert.Equal(t, "콜라", inputs[1].TranslatedName)
	assert.Equal(t, []string{"foods[1]: missing name"}, issues)

	inputs, issues, err = ParseYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, inputs)
	assert.Empty(t, issues)

	_, _, err = ParseYAML(strings.NewReader("foods: {bad"))
	assert.Error(t, err)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	im := New(store, nil)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "foods.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("foods:\n  - name: Bibimbap\n  - name: Japchae\n  - description: nameless\n"), 0o644))
	report, err := im.ImportFile(ctx, yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)
	for _, f := range report.Foods {
		assert.NotZero(t, f.ID)
	}

	xlsxPath := filepath.Join(dir, "foods.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, xlsxBytes(t, [][]interface{}{{"name"}, {"Tteokbokki"}}), 0o644))
	report, err = im.ImportFile(ctx, xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	n, err := store.CountFoods(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	csvPath := filepath.Join(dir, "foods.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name\nx\n"), 0o644))
	_, err = im.ImportFile(ctx, csvPath)
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
}

func TestImportFile_unknownMenu(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(t.TempDir(), "foods.yml")
	require.NoError(t, os.WriteFile(path, []byte("foods:\n  - name: Orphan\n    menu_id: 99\n"), 0o644))

	_, err := New(store, nil).ImportFile(context.Background(), path)
	assert.ErrorIs(t, err, storage.ErrMenuNotFound)
}
