package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freshloop/freshloop/internal/domain"
)

func TestBuildBatchPrompt(t *testing.T) {
	r1 := post("r1", "amy", domain.PostTypeRequest, "tomato", "onion")
	r2 := post("r2", "", domain.PostTypeRequest)
	r2.OriginalText = "need flour"
	o1 := post("o1", "ben", domain.PostTypeOffer, "tomato")
	o1.Location = domain.Location{Description: "Corner of 5th & Main"}
	o2 := post("o2", "cat", domain.PostTypeOffer, "eggs")

	prompt := BuildBatchPrompt([]domain.Post{r1, r2}, []domain.Post{o1, o2}, 5)

	assert.Contains(t, prompt, "1. User: amy, Needs: tomato, onion\n")
	assert.Contains(t, prompt, "2. User: unknown, Needs: need flour\n")
	assert.Contains(t, prompt, "1. User: ben, Has: tomato, Location: Corner of 5th & Main\n")
	assert.Contains(t, prompt, "2. User: cat, Has: eggs, Location: N/A\n")
	assert.Contains(t, prompt, `"request_index"`)
	assert.Contains(t, prompt, "At most 5 offers per request")
	assert.Contains(t, prompt, "match_score >= 60")
	assert.NotContains(t, prompt, "%!")
}

func TestBuildSinglePrompt(t *testing.T) {
	req := post("r1", "amy", domain.PostTypeRequest, "basil")
	o1 := post("o1", "ben", domain.PostTypeOffer, "basil", "mint")
	o1.Location = domain.Location{Description: "Library"}
	o2 := post("o2", "cat", domain.PostTypeOffer, "parsley")

	prompt := BuildSinglePrompt(req, []domain.Post{o1, o2}, 3)

	assert.Contains(t, prompt, "User ID: amy\nLooking for: basil\n")
	assert.Contains(t, prompt, "1. User ID: ben\n   Offering: basil, mint\n   Location: Library\n")
	assert.Contains(t, prompt, "2. User ID: cat\n   Offering: parsley\n   Location: N/A\n")
	assert.Contains(t, prompt, "At most 3 matches")
	assert.NotContains(t, prompt, "request_index")
	assert.NotContains(t, prompt, "%!")
}
