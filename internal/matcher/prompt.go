package matcher

import (
	"fmt"
	"strings"

	"github.com/freshloop/freshloop/internal/domain"
)

const batchInstructions = `
**Task:**
Pair requests with offers. Consider:
1. Ingredient similarity (exact matches and reasonable substitutes)
2. Never pair a user with their own offer
3. Score each pair from 60 to 100 and leave out anything below 60

Reply with JSON in exactly this shape:
{
  "matches": [
    {
      "request_index": 1,
      "offer_index": 2,
      "match_score": 85,
      "matched_ingredients": ["tomato", "onion"],
      "reason": "Has both tomatoes and onions"
    }
  ]
}

Rules:
- Reply with valid JSON only, no other text
- Only pairs with match_score >= 60
- Sort by match_score, highest first
- At most %d offers per request
- Keep reasons short
`

const singleInstructions = `
**Task:**
Decide which offers best satisfy the request. Consider:
1. Ingredient similarity (exact matches, substitutes, related items)
2. Quantity compatibility
3. Freshness and quality hints

Reply with a JSON array in exactly this shape:
[
  {
    "offer_index": 1,
    "match_score": 95,
    "matched_ingredients": ["tomato", "onion"],
    "reason": "Exact match for tomatoes and onions"
  }
]

Rules:
- Only offers with match_score >= 60
- Sort by match_score, highest first
- At most %d matches
- Reply with the JSON array only, no other text
`

// BuildBatchPrompt enumerates every request and offer with 1-based ordinals
// for a single model call.
func BuildBatchPrompt(requests, offers []domain.Post, maxPerRequest int) string {
	var b strings.Builder
	b.WriteString("You are an ingredient matching system for a neighbourhood food-sharing community. Analyze ALL requests and offers below.\n\n")

	b.WriteString("**REQUESTS (users looking for ingredients):**\n")
	for i, r := range requests {
		fmt.Fprintf(&b, "%d. User: %s, Needs: %s\n", i+1, displayUser(r), IngredientsSummary(r))
	}

	b.WriteString("\n**OFFERS (users giving ingredients away):**\n")
	for i, o := range offers {
		fmt.Fprintf(&b, "%d. User: %s, Has: %s, Location: %s\n", i+1, displayUser(o), IngredientsSummary(o), displayLocation(o))
	}

	fmt.Fprintf(&b, batchInstructions, maxPerRequest)
	return b.String()
}

// BuildSinglePrompt asks the model to rank offers for one request.
func BuildSinglePrompt(request domain.Post, offers []domain.Post, maxPerRequest int) string {
	var b strings.Builder
	b.WriteString("You are an ingredient matching system for a neighbourhood food-sharing community.\n\n")

	b.WriteString("**User Request:**\n")
	fmt.Fprintf(&b, "User ID: %s\nLooking for: %s\n\n", displayUser(request), IngredientsSummary(request))

	b.WriteString("**Available Offers:**\n")
	for i, o := range offers {
		fmt.Fprintf(&b, "%d. User ID: %s\n   Offering: %s\n   Location: %s\n", i+1, displayUser(o), IngredientsSummary(o), displayLocation(o))
	}

	fmt.Fprintf(&b, singleInstructions, maxPerRequest)
	return b.String()
}
