package matcher

import (
	"strings"

	"github.com/freshloop/freshloop/internal/domain"
)

// Partitioned holds the active requests and offers of a post snapshot in
// arrival order.
type Partitioned struct {
	Requests []domain.Post
	Offers   []domain.Post
}

func (p Partitioned) Empty() bool {
	return len(p.Requests) == 0 || len(p.Offers) == 0
}

// Partition keeps active posts and splits them by type. Posts of any other
// type or status are ignored.
func Partition(posts []domain.Post) Partitioned {
	var out Partitioned
	for _, p := range posts {
		if !p.IsActive() {
			continue
		}
		switch p.Type {
		case domain.PostTypeRequest:
			out.Requests = append(out.Requests, p)
		case domain.PostTypeOffer:
			out.Offers = append(out.Offers, p)
		}
	}
	return out
}

// IngredientsSummary renders a post's ingredients as the matching key list.
func IngredientsSummary(p domain.Post) string {
	if len(p.Ingredients) == 0 {
		return p.OriginalText
	}
	names := make([]string, len(p.Ingredients))
	for i, ing := range p.Ingredients {
		names[i] = ing.NormalizedName
		if names[i] == "" {
			names[i] = ing.Name
		}
	}
	return strings.Join(names, ", ")
}

// ExcludeUser returns the offers not posted by userID.
func ExcludeUser(offers []domain.Post, userID string) []domain.Post {
	out := make([]domain.Post, 0, len(offers))
	for _, o := range offers {
		if o.UserID != userID {
			out = append(out, o)
		}
	}
	return out
}

func displayUser(p domain.Post) string {
	if p.UserID == "" {
		return "unknown"
	}
	return p.UserID
}

func displayLocation(p domain.Post) string {
	if p.Location.Description == "" {
		return "N/A"
	}
	return p.Location.Description
}
