// SPDX-License-Identifier: MIT

// Package feed parses upstream channel feeds, normalizes them into a neutral
// model and serializes podcast RSS. Enrichment rewrites the model so every
// item carries a playable enclosure.
package feed

import "time"

// Channel is the neutral feed model shared by all providers.
type Channel struct {
	Title       string
	Description string
	Link        string
	Language    string
	ImageURL    string
	Generator   string
	Items       []Item
}

// Item is one episode candidate.
type Item struct {
	// ID is the upstream identifier the final GUID derives from.
	ID string
	// GUIDIsPermaLink is the isPermaLink attribute emitted with the GUID.
	GUIDIsPermaLink bool

	Title        string
	Description  string
	Link         string
	PubDate      time.Time
	DurationSecs int64
	ImageURL     string

	// Media lists candidate enclosures in source order.
	Media []MediaRef

	// Views is the upstream view counter, nil when the source has none.
	// Zero distinguishes scheduled premieres from published videos.
	Views *uint64
}

// MediaRef is one enclosure candidate.
type MediaRef struct {
	URL    string
	Type   string
	Length int64
}
