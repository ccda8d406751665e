// Package models defines core data structures for menus, catalog foods, and match results.
package models

import "time"

// Menu is one scanned menu board: its source image reference and the OCR text extracted from it.
type Menu struct {
	ID               int64     `json:"id" db:"id"`
	OriginalImageURL string    `json:"original_image_url,omitempty" db:"original_image_url"`
	OCRText          string    `json:"ocr_text,omitempty" db:"ocr_text"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	Foods            []*Food   `json:"foods,omitempty" db:"-"`
}

// MenuUpdate carries the fields to change on a menu; nil fields are left untouched.
type MenuUpdate struct {
	OriginalImageURL *string `json:"original_image_url,omitempty"`
	OCRText          *string `json:"ocr_text,omitempty"`
}

// Apply merges the present fields into m.
func (u *MenuUpdate) Apply(m *Menu) {
	if u == nil || m == nil {
		return
	}
	if u.OriginalImageURL != nil {
		m.OriginalImageURL = *u.OriginalImageURL
	}
	if u.OCRText != nil {
		m.OCRText = *u.OCRText
	}
}

// Food is a canonical catalog record. Embedding is nil until the backfill computes it;
// when present its length equals the embedding model's dimension.
type Food struct {
	ID                    int64     `json:"id" db:"id"`
	MenuID                *int64    `json:"menu_id,omitempty" db:"menu_id"`
	Name                  string    `json:"name" db:"name"`
	Description           string    `json:"description,omitempty" db:"description"`
	ImageURL              string    `json:"image_url,omitempty" db:"image_url"`
	Ingredients           string    `json:"ingredients,omitempty" db:"ingredients"`
	Calories              *float64  `json:"calories,omitempty" db:"calories"`
	Protein               *float64  `json:"protein,omitempty" db:"protein"`
	Carbs                 *float64  `json:"carbs,omitempty" db:"carbs"`
	Fat                   *float64  `json:"fat,omitempty" db:"fat"`
	Allergens             string    `json:"allergens,omitempty" db:"allergens"`
	TranslatedName        string    `json:"translated_name,omitempty" db:"translated_name"`
	TranslatedDescription string    `json:"translated_description,omitempty" db:"translated_description"`
	Embedding             []float32 `json:"-" db:"-"`
	HasEmbedding          bool      `json:"has_embedding" db:"-"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// FoodInput is the input for creating a food.
type FoodInput struct {
	MenuID                *int64   `json:"menu_id,omitempty" yaml:"menu_id,omitempty"`
	Name                  string   `json:"name" yaml:"name"`
	Description           string   `json:"description,omitempty" yaml:"description,omitempty"`
	ImageURL              string   `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Ingredients           string   `json:"ingredients,omitempty" yaml:"ingredients,omitempty"`
	Calories              *float64 `json:"calories,omitempty" yaml:"calories,omitempty"`
	Protein               *float64 `json:"protein,omitempty" yaml:"protein,omitempty"`
	Carbs                 *float64 `json:"carbs,omitempty" yaml:"carbs,omitempty"`
	Fat                   *float64 `json:"fat,omitempty" yaml:"fat,omitempty"`
	Allergens             string   `json:"allergens,omitempty" yaml:"allergens,omitempty"`
	TranslatedName        string   `json:"translated_name,omitempty" yaml:"translated_name,omitempty"`
	TranslatedDescription string   `json:"translated_description,omitempty" yaml:"translated_description,omitempty"`
}

// ToFood builds a Food from the input. ID and timestamps are assigned by storage.
func (in *FoodInput) ToFood() *Food {
	return &Food{
		MenuID:                in.MenuID,
		Name:                  in.Name,
		Description:           in.Description,
		ImageURL:              in.ImageURL,
		Ingredients:           in.Ingredients,
		Calories:              in.Calories,
		Protein:               in.Protein,
		Carbs:                 in.Carbs,
		Fat:                   in.Fat,
		Allergens:             in.Allergens,
		TranslatedName:        in.TranslatedName,
		TranslatedDescription: in.TranslatedDescription,
	}
}

// FoodUpdate carries the fields to change on a food; nil fields are left untouched.
type FoodUpdate struct {
	MenuID                *int64   `json:"menu_id,omitempty"`
	Name                  *string  `json:"name,omitempty"`
	Description           *string  `json:"description,omitempty"`
	ImageURL              *string  `json:"image_url,omitempty"`
	Ingredients           *string  `json:"ingredients,omitempty"`
	Calories              *float64 `json:"calories,omitempty"`
	Protein               *float64 `json:"protein,omitempty"`
	Carbs                 *float64 `json:"carbs,omitempty"`
	Fat                   *float64 `json:"fat,omitempty"`
	Allergens             *string  `json:"allergens,omitempty"`
	TranslatedName        *string  `json:"translated_name,omitempty"`
	TranslatedDescription *string  `json:"translated_description,omitempty"`
}

// Apply merges the present fields into f and reports whether the embedding
// source text (name or ingredients) changed. When it did, the stored embedding
// is stale and is cleared.
func (u *FoodUpdate) Apply(f *Food) (embeddingStale bool) {
	if u == nil || f == nil {
		return false
	}
	if u.MenuID != nil {
		f.MenuID = u.MenuID
	}
	if u.Name != nil && *u.Name != f.Name {
		f.Name = *u.Name
		embeddingStale = true
	}
	if u.Description != nil {
		f.Description = *u.Description
	}
	if u.ImageURL != nil {
		f.ImageURL = *u.ImageURL
	}
	if u.Ingredients != nil && *u.Ingredients != f.Ingredients {
		f.Ingredients = *u.Ingredients
		embeddingStale = true
	}
	if u.Calories != nil {
		f.Calories = u.Calories
	}
	if u.Protein != nil {
		f.Protein = u.Protein
	}
	if u.Carbs != nil {
		f.Carbs = u.Carbs
	}
	if u.Fat != nil {
		f.Fat = u.Fat
	}
	if u.Allergens != nil {
		f.Allergens = *u.Allergens
	}
	if u.TranslatedName != nil {
		f.TranslatedName = *u.TranslatedName
	}
	if u.TranslatedDescription != nil {
		f.TranslatedDescription = *u.TranslatedDescription
	}
	if embeddingStale {
		f.Embedding = nil
		f.HasEmbedding = false
	}
	return embeddingStale
}

// EmbeddingText returns the text embedded for f. Ingredients are appended when
// withIngredients is set and the food has any.
func (f *Food) EmbeddingText(withIngredients bool) string {
	if withIngredients && f.Ingredients != "" {
		return f.Name + ", " + f.Ingredients
	}
	return f.Name
}
