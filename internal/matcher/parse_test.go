package matcher

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshloop/freshloop/internal/domain"
)

func TestParseStrictJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKind  Kind
		wantCands []Candidate
		malformed int
	}{
		{
			name:     "matches envelope",
			raw:      `{"matches":[{"request_index":1,"offer_index":2,"match_score":85,"matched_ingredients":["tomato","onion"],"reason":"Exact match"}]}`,
			wantKind: KindParsed,
			wantCands: []Candidate{
				{RequestIndex: 1, OfferIndex: 2, Score: 85, MatchedIngredients: []string{"tomato", "onion"}, Reason: "Exact match"},
			},
		},
		{
			name:     "bare array",
			raw:      `[{"offer_index":3,"match_score":70,"matched_ingredients":["bell pepper"],"reason":"Substitute"}]`,
			wantKind: KindParsed,
			wantCands: []Candidate{
				{OfferIndex: 3, Score: 70, MatchedIngredients: []string{"bell pepper"}, Reason: "Substitute"},
			},
		},
		{
			name:     "lenient numbers and ingredient string",
			raw:      `[{"offer_index":"2","match_score":72.6,"matched_ingredients":"eggs, milk","reason":" ok "}]`,
			wantKind: KindParsed,
			wantCands: []Candidate{
				{OfferIndex: 2, Score: 73, MatchedIngredients: []string{"eggs", "milk"}, Reason: "ok"},
			},
		},
		{
			name:      "empty envelope",
			raw:       `{"matches":[]}`,
			wantKind:  KindParsed,
			wantCands: []Candidate{},
		},
		{
			name:      "object without matches key",
			raw:       `{"result":"none"}`,
			wantKind:  KindParsed,
			wantCands: []Candidate{},
		},
		{
			name:     "one malformed entry",
			raw:      `{"matches":[{"request_index":1,"offer_index":1,"match_score":90},{"request_index":"first","offer_index":2,"match_score":80}]}`,
			wantKind: KindPartiallyParsed,
			wantCands: []Candidate{
				{RequestIndex: 1, OfferIndex: 1, Score: 90},
			},
			malformed: 1,
		},
		{
			name:     "every entry malformed",
			raw:      `[1, "two", {"match_score":"high"}]`,
			wantKind: KindUnparsed,
		},
		{
			name:     "prose",
			raw:      `Here are the matches I found.`,
			wantKind: KindUnparsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStrictJSON(tt.raw)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, StageStrictJSON, got.Stage)
			assert.Equal(t, tt.malformed, got.Malformed)
			if tt.wantKind == KindUnparsed {
				var pe *domain.ParseError
				require.True(t, errors.As(got.Err, &pe))
				assert.Equal(t, "strict_json", pe.Stage)
				return
			}
			require.NoError(t, got.Err)
			if diff := cmp.Diff(tt.wantCands, got.Candidates); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseFencedJSON(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantOffers []int
	}{
		{
			name:       "json fence",
			raw:        "```json\n{\"matches\":[{\"request_index\":1,\"offer_index\":1,\"match_score\":88}]}\n```",
			wantOffers: []int{1},
		},
		{
			name:       "plain fence with prose",
			raw:        "Sure! Here you go:\n```\n[{\"offer_index\":2,\"match_score\":75}]\n```\nLet me know if you need more.",
			wantOffers: []int{2},
		},
		{
			name:       "fence with other language tag",
			raw:        "```JSON\n[{\"offer_index\":4,\"match_score\":61}]\n```",
			wantOffers: []int{4},
		},
		{
			name:       "unterminated fence",
			raw:        "```json\n[{\"offer_index\":5,\"match_score\":99}]",
			wantOffers: []int{5},
		},
		{
			name:       "embedded object without fence",
			raw:        `The best pairs are {"matches":[{"request_index":2,"offer_index":3,"match_score":91,"reason":"has {braces} in text"}]} as requested.`,
			wantOffers: []int{3},
		},
		{
			name:       "embedded array without fence",
			raw:        `Result: [{"offer_index":6,"match_score":64,"reason":"close enough"}] done`,
			wantOffers: []int{6},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFencedJSON(tt.raw)
			require.Equal(t, KindParsed, got.Kind, "err: %v", got.Err)
			assert.Equal(t, StageFencedJSON, got.Stage)

			offers := make([]int, len(got.Candidates))
			for i, c := range got.Candidates {
				offers[i] = c.OfferIndex
			}
			assert.Equal(t, tt.wantOffers, offers)
		})
	}
}

func TestParseFencedJSONNothingToFind(t *testing.T) {
	got := ParseFencedJSON("I could not find any good matches, sorry.")
	assert.Equal(t, KindUnparsed, got.Kind)
	assert.Error(t, got.Err)

	got = ParseFencedJSON("```json\nnot json at all\n```")
	assert.Equal(t, KindUnparsed, got.Kind)
}

func TestParseDelimited(t *testing.T) {
	raw := strings.Join([]string{
		"Here are the matches:",
		"request_index | offer_index | score | ingredients | reason",
		"|---|---|---|---|---|",
		"1 | 2 | 85% | tomato, onion | Exact match",
		"---",
		"| 2 | 1 | 70 | eggs | Has eggs |",
		"2 | x | 70 | eggs | bad offer index",
	}, "\n")

	got := ParseDelimited(raw)
	assert.Equal(t, KindPartiallyParsed, got.Kind)
	assert.Equal(t, StageDelimited, got.Stage)
	assert.Equal(t, 1, got.Malformed)

	want := []Candidate{
		{RequestIndex: 1, OfferIndex: 2, Score: 85, MatchedIngredients: []string{"tomato", "onion"}, Reason: "Exact match"},
		{RequestIndex: 2, OfferIndex: 1, Score: 70, MatchedIngredients: []string{"eggs"}, Reason: "Has eggs"},
	}
	if diff := cmp.Diff(want, got.Candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDelimitedSingleFormat(t *testing.T) {
	got := ParseDelimited("#1 | 92 | basil | Fresh basil\n3 | 65.4 | | Might have some")
	require.Equal(t, KindParsed, got.Kind)
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, Candidate{OfferIndex: 1, Score: 92, MatchedIngredients: []string{"basil"}, Reason: "Fresh basil"}, got.Candidates[0])
	assert.Equal(t, 65, got.Candidates[1].Score)
	assert.Empty(t, got.Candidates[1].MatchedIngredients)
}

func TestParseDelimitedFailures(t *testing.T) {
	got := ParseDelimited("no pipes anywhere")
	assert.Equal(t, KindUnparsed, got.Kind)

	got = ParseDelimited("1 | 2\n3 | 4 | 5")
	assert.Equal(t, KindUnparsed, got.Kind)
	assert.Contains(t, got.Err.Error(), "malformed")
}

func TestParseChain(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantStage Stage
		wantKind  Kind
	}{
		{"strict", `{"matches":[{"request_index":1,"offer_index":1,"match_score":80}]}`, StageStrictJSON, KindParsed},
		{"fenced", "```json\n{\"matches\":[]}\n```", StageFencedJSON, KindParsed},
		{"delimited", "1 | 1 | 80 | rice | Has rice", StageDelimited, KindParsed},
		{"nothing", "The model is overloaded, try later.", StageNone, KindUnparsed},
		{"empty", "   ", StageNone, KindUnparsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			assert.Equal(t, tt.wantStage, got.Stage)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestParseUnparsedCarriesParseError(t *testing.T) {
	got := Parse(strings.Repeat("x", 1000))

	var pe *domain.ParseError
	require.True(t, errors.As(got.Err, &pe))
	assert.Equal(t, "none", pe.Stage)
	assert.Len(t, pe.Raw, maxRawInError)
}

func TestFlexIntNull(t *testing.T) {
	got := ParseStrictJSON(`[{"request_index":null,"offer_index":1,"match_score":80,"matched_ingredients":null}]`)
	require.Equal(t, KindParsed, got.Kind)
	assert.Equal(t, 0, got.Candidates[0].RequestIndex)
	assert.Nil(t, got.Candidates[0].MatchedIngredients)
}
