// SPDX-License-Identifier: Apache-2.0

// Package categorize maps free event text onto the fixed category enum
// used across the registry and the consumer feed.
package categorize

import (
	"regexp"
	"strings"
)

// Categories is the closed enum, in rule evaluation order. Comedy runs
// before music because comedy listings routinely mention the headliner
// "band"; movies before theatre because of "movie theater".
var Categories = []string{
	"comedy",
	"movies",
	"theatre",
	"music",
	"art",
	"food",
	"tech",
	"lectures",
	"kids",
}

type rule struct {
	category string
	match    *regexp.Regexp
	// guard vetoes a match even when the positive pattern fires, so
	// culturally ambiguous terms do not misfire into the wrong bucket.
	guard *regexp.Regexp
}

var rules = []rule{
	{
		category: "comedy",
		match:    regexp.MustCompile(`\b(comedy|comedian|stand[ -]?up|improv|open mic comedy|sketch)\b`),
	},
	{
		category: "movies",
		match:    regexp.MustCompile(`\b(film|films|movie|movies|screening|cinema|documentary|double feature)\b`),
	},
	{
		category: "theatre",
		match:    regexp.MustCompile(`\b(theatre|theater|play|musical|opera|ballet|broadway|drama)\b`),
		// "movie theater" belongs to movies and "soap opera" to nothing.
		guard: regexp.MustCompile(`\b(movie theat(?:er|re)|home theat(?:er|re)|soap opera)\b`),
	},
	{
		category: "music",
		match:    regexp.MustCompile(`\b(concert|band|live music|dj|orchestra|symphony|jazz|singer|album|tour|hip[ -]?hop|punk|indie)\b`),
	},
	{
		category: "art",
		match:    regexp.MustCompile(`\b(art|gallery|exhibit|exhibition|sculpture|painting|photography|installation)\b`),
		guard:    regexp.MustCompile(`\b(martial art|art of the deal)\b`),
	},
	{
		category: "food",
		match:    regexp.MustCompile(`\b(food|tasting|dinner|brunch|wine|beer|chef|culinary|cocktail|pop[ -]?up kitchen)\b`),
		guard:    regexp.MustCompile(`\bfood for thought\b`),
	},
	{
		category: "tech",
		match:    regexp.MustCompile(`\b(tech|technology|startup|hackathon|coding|software|ai|machine learning|developer)\b`),
		// techno/technique/technical-rider text is music-venue noise.
		guard: regexp.MustCompile(`\b(techno|technique|technical (?:rider|difficulties))\b`),
	},
	{
		category: "lectures",
		match:    regexp.MustCompile(`\b(lecture|talk|speaker|author event|book reading|panel|discussion|seminar)\b`),
	},
	{
		category: "kids",
		match:    regexp.MustCompile(`\b(kids|children|family[ -]?friendly|all ages|storytime|puppet)\b`),
	},
}

// Assign picks a category for the joined free text, falling back to the
// venue's configured default. A venue default of "all" (or empty) means
// the venue has no opinion, so unmatched events stay uncategorized at
// the venue level and inherit the default downstream.
func Assign(text, venueDefault string) string {
	lowered := strings.ToLower(text)
	for _, r := range rules {
		if !r.match.MatchString(lowered) {
			continue
		}
		if r.guard != nil && r.guard.MatchString(lowered) && !matchesOutsideGuard(r, lowered) {
			continue
		}
		return r.category
	}
	if venueDefault != "" && venueDefault != "all" {
		return venueDefault
	}
	return "all"
}

// matchesOutsideGuard reports whether any positive match survives after
// removing the guarded phrases, e.g. "techno night at the tech museum"
// still counts as tech.
func matchesOutsideGuard(r rule, lowered string) bool {
	stripped := r.guard.ReplaceAllString(lowered, " ")
	return r.match.MatchString(stripped)
}

// Known reports whether the category is part of the closed enum
// (venue defaults also allow "all").
func Known(category string) bool {
	if category == "all" {
		return true
	}
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
