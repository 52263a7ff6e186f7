// Package recommend ranks available listings against a buyer's stated
// preferences for the recommendation form.
package recommend

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/txn2/realty-platform/pkg/realty"
)

const (
	defaultLimit = 5
	maxLimit     = 20

	// budgetStretch is how far over MaxPrice a listing may be and still rank.
	budgetStretch = 0.10
)

// Score weights.
const (
	weightBudget    = 30
	weightStretch   = 10
	weightCity      = 25
	weightType      = 20
	weightBedrooms  = 10
	weightBathrooms = 5
	weightFeatured  = 5

	maxScore = weightBudget + weightCity + weightType + weightBedrooms + weightBathrooms + weightFeatured
)

// Preferences describe what the buyer is looking for. Zero values mean
// "no preference".
type Preferences struct {
	MinPrice     int64  `json:"min_price"`
	MaxPrice     int64  `json:"max_price"`
	City         string `json:"city"`
	Type         string `json:"type"`
	MinBedrooms  int    `json:"min_bedrooms"`
	MinBathrooms int    `json:"min_bathrooms"`
	FeaturedOnly bool   `json:"featured_only"`
	Limit        int    `json:"limit"`
}

// Validate checks that the preferences are consistent.
func (p Preferences) Validate() error {
	if p.MinPrice < 0 || p.MaxPrice < 0 {
		return &realty.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.MaxPrice > 0 && p.MinPrice > p.MaxPrice {
		return &realty.ValidationError{Field: "min_price", Reason: "must not exceed max_price"}
	}
	if p.MinBedrooms < 0 || p.MinBathrooms < 0 {
		return &realty.ValidationError{Field: "rooms", Reason: "must not be negative"}
	}
	if p.Limit < 0 {
		return &realty.ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// Recommendation is a ranked listing with the reasons it matched.
type Recommendation struct {
	Property realty.Property `json:"property"`
	Score    float64         `json:"score"`
	Reasons  []string        `json:"reasons"`
}

// Recommender ranks listings from a property store.
type Recommender struct {
	store realty.PropertyStore
}

// New creates a Recommender over store.
func New(store realty.PropertyStore) *Recommender {
	return &Recommender{store: store}
}

// Recommend returns the best available listings for prefs, highest score
// first. No match yields an empty slice, not an error.
func (r *Recommender) Recommend(ctx context.Context, prefs Preferences) ([]Recommendation, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	filter := realty.PropertyFilter{Status: realty.StatusAvailable}
	if prefs.FeaturedOnly {
		featured := true
		filter.Featured = &featured
	}
	candidates, err := r.store.ListProperties(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing candidate properties: %w", err)
	}

	out := make([]Recommendation, 0, len(candidates))
	for _, p := range candidates {
		if rec, ok := Score(p, prefs); ok {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b Recommendation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Property.Price, b.Property.Price)
	})

	limit := prefs.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Score rates a single listing. ok is false when the listing violates a
// hard requirement: too expensive, too small or not featured when required.
func Score(p realty.Property, prefs Preferences) (Recommendation, bool) {
	var (
		points  int
		reasons []string
	)

	switch {
	case prefs.MinPrice > 0 && p.Price < prefs.MinPrice:
		return Recommendation{}, false
	case prefs.MaxPrice == 0 || p.Price <= prefs.MaxPrice:
		points += weightBudget
		if prefs.MaxPrice > 0 || prefs.MinPrice > 0 {
			reasons = append(reasons, "within budget")
		}
	case float64(p.Price) <= float64(prefs.MaxPrice)*(1+budgetStretch):
		points += weightStretch
		reasons = append(reasons, "slightly above budget")
	default:
		return Recommendation{}, false
	}

	if prefs.MinBedrooms > 0 {
		if p.Bedrooms < prefs.MinBedrooms {
			return Recommendation{}, false
		}
		reasons = append(reasons, fmt.Sprintf("%d+ bedrooms", prefs.MinBedrooms))
	}
	points += weightBedrooms

	if prefs.MinBathrooms > 0 {
		if p.Bathrooms < prefs.MinBathrooms {
			return Recommendation{}, false
		}
		reasons = append(reasons, fmt.Sprintf("%d+ bathrooms", prefs.MinBathrooms))
	}
	points += weightBathrooms

	if prefs.FeaturedOnly && !p.Featured {
		return Recommendation{}, false
	}

	if prefs.City != "" && strings.EqualFold(strings.TrimSpace(prefs.City), p.City) {
		points += weightCity
		reasons = append(reasons, "in "+p.City)
	}
	if prefs.Type != "" && strings.EqualFold(strings.TrimSpace(prefs.Type), p.Type) {
		points += weightType
		reasons = append(reasons, "is a "+strings.ToLower(p.Type))
	}
	if p.Featured {
		points += weightFeatured
		reasons = append(reasons, "featured listing")
	}

	if reasons == nil {
		reasons = []string{}
	}
	return Recommendation{
		Property: p,
		Score:    float64(points) / maxScore,
		Reasons:  reasons,
	}, true
}
