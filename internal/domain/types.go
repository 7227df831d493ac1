package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type PostType string

const (
	PostTypeRequest PostType = "request"
	PostTypeOffer   PostType = "offer"
)

type PostStatus string

const (
	PostStatusActive   PostStatus = "active"
	PostStatusInactive PostStatus = "inactive"
)

type Ingredient struct {
	Name           string   `json:"name" yaml:"name"`
	NormalizedName string   `json:"normalized_name,omitempty" yaml:"normalized_name"`
	Quantity       *float64 `json:"quantity,omitempty" yaml:"quantity"`
	Unit           *string  `json:"unit,omitempty" yaml:"unit"`
}

// Location is where an offer can be picked up. Lat/Lng are optional.
type Location struct {
	Description string   `json:"description" yaml:"description"`
	Lat         *float64 `json:"lat,omitempty" yaml:"lat"`
	Lng         *float64 `json:"lng,omitempty" yaml:"lng"`
}

// Post is a community request for, or offer of, ingredients.
type Post struct {
	ID           string       `json:"id" yaml:"id" validate:"required,max=200"`
	UserID       string       `json:"user_id" yaml:"user_id" validate:"max=200"`
	Type         PostType     `json:"type" yaml:"type" validate:"required,oneof=request offer"`
	Ingredients  []Ingredient `json:"ingredients" yaml:"ingredients" validate:"max=100"`
	Location     Location     `json:"location" yaml:"location"`
	OriginalText string       `json:"original_text" yaml:"original_text" validate:"max=2000"`
	Status       PostStatus   `json:"status" yaml:"status"`
	CreatedAt    time.Time    `json:"created_at" yaml:"created_at"`
}

// UnmarshalJSON accepts the document-store style "_id" key as an alias for
// "id", and zone-less created_at values, which are read as UTC.
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var aux struct {
		plain
		LegacyID  string          `json:"_id"`
		CreatedAt json.RawMessage `json:"created_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	createdAt, err := parseTimestamp(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	*p = Post(aux.plain)
	p.CreatedAt = createdAt
	if p.ID == "" {
		p.ID = aux.LegacyID
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// parseTimestamp reads a JSON string timestamp. Null and "" give the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, fmt.Errorf("want a timestamp string, got %s", raw)
	}
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

func (p *Post) IsActive() bool {
	return p.Status == PostStatusActive
}

// MatchRequestSide describes the requesting post inside a Match.
type MatchRequestSide struct {
	UserID             string `json:"user_id"`
	IngredientsSummary string `json:"ingredients_summary"`
	PostID             string `json:"post_id"`
}

// MatchOfferSide describes the offering post inside a Match.
type MatchOfferSide struct {
	UserID             string   `json:"user_id"`
	IngredientsSummary string   `json:"ingredients_summary"`
	Location           Location `json:"location"`
	PostID             string   `json:"post_id"`
}

// Match is a scored pairing of one request with one offer.
type Match struct {
	Request            MatchRequestSide `json:"request"`
	Offer              MatchOfferSide   `json:"offer"`
	MatchScore         int              `json:"match_score"`
	MatchedIngredients []string         `json:"matched_ingredients"`
	Reason             string           `json:"reason"`
	MatchedAt          time.Time        `json:"matched_at"`
}

type MatchMode string

const (
	MatchModeBatch      MatchMode = "batch"
	MatchModeSequential MatchMode = "sequential"
	MatchModeSingle     MatchMode = "single"
)

// HelpRequest is a neighbour asking for one missing ingredient for a recipe.
type HelpRequest struct {
	RecipeName      string    `json:"recipe_name" validate:"required,max=200"`
	NeedIngredient  string    `json:"need_ingredient" validate:"required,max=200"`
	HaveIngredients []string  `json:"have_ingredients" validate:"max=100,dive,max=200"`
	Message         string    `json:"message,omitempty" validate:"max=1000"`
	Timestamp       time.Time `json:"timestamp"`
}

// HelpMessage is a persisted community help request.
type HelpMessage struct {
	ID int64 `json:"id"`
	HelpRequest
	CreatedAt time.Time `json:"created_at"`
}
