package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/wtm/internal/models"
)

const (
	fieldName           = "name"
	fieldTranslatedName = "translated_name"
	fieldIngredients    = "ingredients"

	defaultNameBoost = 3.0
	defaultFuzziness = 1
)

// BleveIndex implements NameIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newFoodMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()
	// standard analyzer: unicode tokenize + lowercase, no stemming, so Hangul
	// words stay intact.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt(fieldName, text)
	doc.AddFieldMappingsAt(fieldTranslatedName, text)
	doc.AddFieldMappingsAt(fieldIngredients, text)

	im.AddDocumentMapping("food", doc)
	im.DefaultType = "food"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps
// the index in memory; it is then rebuilt from the store on startup.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newFoodMapping()
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }

func foodDoc(f *models.Food) map[string]interface{} {
	return map[string]interface{}{
		fieldName:           f.Name,
		fieldTranslatedName: f.TranslatedName,
		fieldIngredients:    f.Ingredients,
	}
}

// IndexFood indexes (or reindexes) a single food.
func (b *BleveIndex) IndexFood(ctx context.Context, food *models.Food) error {
	if err := b.index.Index(docID(food.ID), foodDoc(food)); err != nil {
		return fmt.Errorf("index food %d: %w", food.ID, err)
	}
	return nil
}

// Rebuild drops every indexed food and indexes foods in one batch.
func (b *BleveIndex) Rebuild(ctx context.Context, foods []*models.Food) error {
	count, err := b.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to get doc count: %w", err)
	}
	batch := b.index.NewBatch()
	if count > 0 {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = int(count)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("Bleve list failed: %w", err)
		}
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
	}
	for _, f := range foods {
		if err := batch.Index(docID(f.ID), foodDoc(f)); err != nil {
			return fmt.Errorf("index food %d: %w", f.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Batch(batch)
}

// Search matches query against name, translated name and ingredients, with
// name fields weighted by opts.NameBoost. Hits are ordered by score, then id.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []Hit{}, nil
	}
	boost := defaultNameBoost
	fuzzy := false
	fuzziness := defaultFuzziness
	if opts != nil {
		if opts.NameBoost > 0 {
			boost = opts.NameBoost
		}
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	q := bleve.NewDisjunctionQuery(
		fieldQuery(query, fieldName, boost, fuzzy, fuzziness),
		fieldQuery(query, fieldTranslatedName, boost, fuzzy, fuzziness),
		fieldQuery(query, fieldIngredients, 1.0, fuzzy, fuzziness),
	)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{fieldName}
	req.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		name, _ := hit.Fields[fieldName].(string)
		out = append(out, Hit{FoodID: id, Name: name, Score: hit.Score})
	}
	return out, nil
}

// fieldQuery builds a match over one field. With fuzzy set each term becomes
// a FuzzyQuery and any term may match.
func fieldQuery(query, field string, boost float64, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Delete removes a food from the index.
func (b *BleveIndex) Delete(ctx context.Context, foodID int64) error {
	return b.index.Delete(docID(foodID))
}

// DocCount returns the number of indexed foods.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// AllTerms returns the unique terms of the name fields.
func (b *BleveIndex) AllTerms() ([]string, error) {
	seen := make(map[string]struct{})
	terms := make([]string, 0)
	for _, field := range []string{fieldName, fieldTranslatedName} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("field dict %s: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// TermFrequency returns the number of foods whose name fields contain term.
func (b *BleveIndex) TermFrequency(term string) (int, error) {
	name := bleve.NewTermQuery(term)
	name.SetField(fieldName)
	translated := bleve.NewTermQuery(term)
	translated.SetField(fieldTranslatedName)
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(name, translated))
	req.Size = 0
	res, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(res.Total), nil
}
