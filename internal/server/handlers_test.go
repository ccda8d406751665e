package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/catalog"
	"github.com/hyperjump/wtm/internal/config"
	"github.com/hyperjump/wtm/internal/embedding"
	"github.com/hyperjump/wtm/internal/keyword"
	"github.com/hyperjump/wtm/internal/matcher"
	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/ocr"
	"github.com/hyperjump/wtm/internal/storage"
)

const testDims = 64

type testEnv struct {
	srv     *Server
	store   storage.Storage
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "wtm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	cfg.Embedding.Provider = config.EmbeddingProviderMock
	cfg.Embedding.Dimensions = testDims
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "wtm.db")

	provider := embedding.NewStaticProvider(embedding.NewMockEmbedder(testDims))
	cat, err := catalog.NewMemoryCatalog(store, testDims)
	require.NoError(t, err)
	names, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = names.Close() })

	deps := Deps{
		Store:      store,
		Resolver:   matcher.NewResolver(provider, cat),
		Catalog:    cat,
		Backfiller: catalog.NewBackfiller(store, provider, cat, false, nil),
		Embedder:   provider,
		Model:      provider,
		Names:      names,
		Suggester:  keyword.NewSuggester(names),
		Extractor:  ocr.NewExtractor(ocr.WithImageOCR(ocr.NewPlaceholderOCR(nil))),
		Config:     cfg,
		Logger:     zap.NewNop(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	srv := NewServer(deps)
	return &testEnv{srv: srv, store: store, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func (e *testEnv) createFood(t *testing.T, in models.FoodInput) *models.Food {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/foods", in)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*models.Food](t, w)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleMatch(t *testing.T) {
	env := newTestEnv(t)
	stew := env.createFood(t, models.FoodInput{Name: "Kimchi Stew"})
	assert.True(t, stew.HasEmbedding, "foods are embedded on write")
	env.createFood(t, models.FoodInput{Name: "Special Pizza"})

	w := env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "Kimchi Stew : 9,000원\n\n소고기 스테이크"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.MatchResponse](t, w)

	assert.NotEmpty(t, resp.MatchID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Kimchi Stew", resp.Results[0].Item.Name)
	require.NotNil(t, resp.Results[0].Item.PriceText)
	assert.Equal(t, "9,000원", *resp.Results[0].Item.PriceText)
	require.NotEmpty(t, resp.Results[0].Candidates)
	assert.Equal(t, stew.ID, resp.Results[0].Candidates[0].Food.ID)
	assert.InDelta(t, 1.0, resp.Results[0].Candidates[0].Similarity, 1e-5)
	assert.Equal(t, "소고기 스테이크", resp.Results[1].Item.Name)
	assert.Nil(t, resp.Results[1].Item.PriceText)
	assert.NotNil(t, resp.Results[1].Candidates)
}

func TestHandleMatch_overridesAndValidation(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Kimchi Stew", "Kimchi Fried Rice", "Kimchi Pancake"} {
		env.createFood(t, models.FoodInput{Name: name})
	}
	minusOne := -1.0
	w := env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "Kimchi Stew", TopK: 2, Threshold: &minusOne})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.MatchResponse](t, w)
	assert.Len(t, resp.Results[0].Candidates, 2)

	two := 2.0
	for name, body := range map[string]interface{}{
		"bad json":       "{",
		"empty text":     models.MatchRequest{Text: ""},
		"negative top_k": models.MatchRequest{Text: "x", TopK: -1},
		"threshold > 1":  models.MatchRequest{Text: "x", Threshold: &two},
	} {
		w := env.do(t, http.MethodPost, "/api/v1/match", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

type downCatalog struct{}

func (downCatalog) Search(context.Context, []float32, int, float64) ([]models.MatchCandidate, error) {
	return nil, fmt.Errorf("%w: connection refused", catalog.ErrCatalogUnavailable)
}
func (downCatalog) Dimensions() int               { return testDims }
func (downCatalog) Refresh(context.Context) error { return catalog.ErrCatalogUnavailable }
func (downCatalog) Stats(context.Context) (catalog.Stats, error) {
	return catalog.Stats{}, catalog.ErrCatalogUnavailable
}

func TestHandleMatch_catalogUnavailable(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Catalog = downCatalog{}
		d.Resolver = matcher.NewResolver(embedding.NewStaticProvider(embedding.NewMockEmbedder(testDims)), downCatalog{})
	})
	w := env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "pasta"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/catalog/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleMatch_modelUnavailable(t *testing.T) {
	broken := embedding.NewProvider(func(context.Context) (embedding.Embedder, error) {
		return nil, fmt.Errorf("no weights")
	})
	env := newTestEnv(t, func(d *Deps) {
		d.Resolver = matcher.NewResolver(broken, d.Catalog)
	})
	w := env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "a: 1\nb: 2"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.MatchResponse](t, w)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Empty(t, r.Candidates)
	}
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("menu_image", filename)
		require.NoError(t, err)
		_, _ = fw.Write(content)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleCreateMenu_upload(t *testing.T) {
	env := newTestEnv(t)
	env.createFood(t, models.FoodInput{Name: "Special Pizza"})

	body, ct := multipartBody(t, "board.png", []byte("\x89PNG fake"),
		map[string]string{"original_image_url": "https://cdn.example.com/board.png"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/menus", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[struct {
		Menu    models.Menu          `json:"menu"`
		MatchID string               `json:"match_id"`
		Results []models.MatchResult `json:"results"`
	}](t, w)
	assert.NotZero(t, resp.Menu.ID)
	assert.Equal(t, "https://cdn.example.com/board.png", resp.Menu.OriginalImageURL)
	assert.Equal(t, ocr.SampleMenuText, resp.Menu.OCRText)
	assert.NotEmpty(t, resp.MatchID)
	require.Len(t, resp.Results, 3)
	// the first separator splits name from price
	assert.Equal(t, "Menu Item 2", resp.Results[1].Item.Name)
	require.NotNil(t, resp.Results[1].Item.PriceText)
	assert.Equal(t, "Special Pizza - $15.00", *resp.Results[1].Item.PriceText)

	stored, err := env.store.GetMenu(context.Background(), resp.Menu.ID)
	require.NoError(t, err)
	assert.Equal(t, ocr.SampleMenuText, stored.OCRText)
}

func TestHandleCreateMenu_unsupportedContentType(t *testing.T) {
	env := newTestEnv(t)

	for _, ct := range []string{"text/plain", ""} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/menus", strings.NewReader("Pizza: $10"))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code, "content type %q", ct)
	}

	menus, err := env.store.ListMenus(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, menus, "rejected requests must not create menus")
}

func TestHandleCreateMenu_uploadWithoutImageURL(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartBody(t, "board.png", []byte("\x89PNG fake"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/menus", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp createMenuResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Menu.OriginalImageURL, "uploads are not stored, so no URL is invented")
	assert.Equal(t, ocr.SampleMenuText, resp.Menu.OCRText)
}

func TestHandleCreateMenu_noOCR(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Extractor = ocr.NewExtractor() })

	body, ct := multipartBody(t, "board.jpg", []byte("jpeg"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/menus", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// a text upload needs no OCR
	body, ct = multipartBody(t, "menu.txt", []byte("콜라 - 2,000원"), nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/menus", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"parsed_name":"콜라"`)
}

func TestHandleCreateMenu_tooLarge(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Config.Server.MaxUploadMB = 1 })
	body, ct := multipartBody(t, "big.txt", bytes.Repeat([]byte("a"), 2<<20), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/menus", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMenuLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ocrText := "Kimchi Stew: 9,000원"
	w := env.do(t, http.MethodPost, "/api/v1/menus", models.MenuUpdate{OCRText: &ocrText})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Menu models.Menu `json:"menu"`
	}](t, w).Menu

	menuPath := fmt.Sprintf("/api/v1/menus/%d", created.ID)
	menuID := created.ID
	env.createFood(t, models.FoodInput{Name: "Kimchi Stew", MenuID: &menuID})

	w = env.do(t, http.MethodGet, menuPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Menu](t, w)
	assert.Equal(t, ocrText, got.OCRText)
	require.Len(t, got.Foods, 1)

	w = env.do(t, http.MethodGet, menuPath+"/foods", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Food](t, w), 1)

	w = env.do(t, http.MethodGet, menuPath+"/matches?top_k=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	matches := decode[models.MatchResponse](t, w)
	require.Len(t, matches.Results, 1)
	require.Len(t, matches.Results[0].Candidates, 1)
	assert.Equal(t, "Kimchi Stew", matches.Results[0].Candidates[0].Food.Name)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, menuPath+"/matches?threshold=3", nil).Code)

	url := "https://example.com/menu.jpg"
	w = env.do(t, http.MethodPut, menuPath, models.MenuUpdate{OriginalImageURL: &url})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Menu](t, w)
	assert.Equal(t, url, updated.OriginalImageURL)
	assert.Equal(t, ocrText, updated.OCRText, "absent fields are untouched")

	w = env.do(t, http.MethodGet, "/api/v1/menus?skip=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Menu](t, w), 1)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/menus?limit=-1", nil).Code)

	w = env.do(t, http.MethodDelete, menuPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, menuPath, nil).Code)

	n, err := env.store.CountFoods(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "deleting a menu deletes its foods")

	w = env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "Kimchi Stew"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[models.MatchResponse](t, w).Results[0].Candidates, "catalog no longer holds the deleted food")
}

func TestMenuNotFound(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/menus/999"},
		{http.MethodDelete, "/api/v1/menus/999"},
		{http.MethodGet, "/api/v1/menus/999/foods"},
		{http.MethodGet, "/api/v1/menus/999/matches"},
	} {
		w := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
	}
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/menus/abc", nil).Code)
}

func TestFoodLifecycle(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/foods", models.FoodInput{Name: "  "}).Code)
	missing := int64(999)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/foods", models.FoodInput{Name: "x", MenuID: &missing}).Code)

	food := env.createFood(t, models.FoodInput{Name: "Bulgogi", Ingredients: "beef"})
	path := fmt.Sprintf("/api/v1/foods/%d", food.ID)

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bulgogi", decode[models.Food](t, w).Name)

	newName := "Dak Galbi"
	w = env.do(t, http.MethodPut, path, models.FoodUpdate{Name: &newName})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Food](t, w)
	assert.Equal(t, "Dak Galbi", updated.Name)
	assert.Equal(t, "beef", updated.Ingredients)
	assert.True(t, updated.HasEmbedding, "renamed food is re-embedded")

	w = env.do(t, http.MethodPost, "/api/v1/match", models.MatchRequest{Text: "Dak Galbi"})
	resp := decode[models.MatchResponse](t, w)
	require.NotEmpty(t, resp.Results[0].Candidates)
	assert.Equal(t, food.ID, resp.Results[0].Candidates[0].Food.ID)

	w = env.do(t, http.MethodGet, "/api/v1/foods", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Food](t, w), 1)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
}

func TestHandleSearchFoods(t *testing.T) {
	env := newTestEnv(t)
	pizza := env.createFood(t, models.FoodInput{Name: "Special Pizza"})
	env.createFood(t, models.FoodInput{Name: "김치찌개", TranslatedName: "Kimchi Stew"})

	w := env.do(t, http.MethodGet, "/api/v1/foods/search?q=pizza", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[foodSearchResponse](t, w)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, pizza.ID, resp.Hits[0].FoodID)

	w = env.do(t, http.MethodGet, "/api/v1/foods/search?q=specal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[foodSearchResponse](t, w)
	assert.Empty(t, resp.Hits)
	assert.Equal(t, "special", resp.DidYouMean)

	w = env.do(t, http.MethodGet, "/api/v1/foods/search?q=specal&fuzzy=true", nil)
	resp = decode[foodSearchResponse](t, w)
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, pizza.ID, resp.Hits[0].FoodID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/foods/search", nil).Code)
}

func TestHandleBackfillAndStatus(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Embedder = nil })
	ctx := context.Background()
	for _, name := range []string{"Japchae", "Bibimbap"} {
		require.NoError(t, env.store.CreateFood(ctx, &models.Food{Name: name}))
	}

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]interface{}](t, w)
	assert.EqualValues(t, 2, status["foods"])
	assert.EqualValues(t, 0, status["embedded_foods"])

	w = env.do(t, http.MethodPost, "/api/v1/catalog/backfill", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[catalog.BackfillReport](t, w)
	assert.Equal(t, 2, report.Embedded)
	assert.Zero(t, report.Failed)

	w = env.do(t, http.MethodGet, "/api/v1/status", nil)
	status = decode[map[string]interface{}](t, w)
	assert.EqualValues(t, 2, status["embedded_foods"])
	cat, ok := status["catalog"].(map[string]interface{})
	require.True(t, ok, "status carries catalog stats")
	assert.EqualValues(t, 2, cat["size"])
	assert.Equal(t, "memory", cat["backend"])

	w = env.do(t, http.MethodPost, "/api/v1/catalog/backfill?recompute=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report = decode[catalog.BackfillReport](t, w)
	assert.EqualValues(t, 2, report.Cleared)
	assert.Equal(t, 2, report.Embedded)

	w = env.do(t, http.MethodPost, "/api/v1/catalog/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleBackfill_notConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Backfiller = nil })
	w := env.do(t, http.MethodPost, "/api/v1/catalog/backfill", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "backfill"))
}
