// SPDX-License-Identifier: MIT

package feed

import (
	"encoding/xml"
	"fmt"
	"time"
)

// Atom carrier structs, shaped after the feeds YouTube serves under
// /feeds/videos.xml. The media:group children carry what RSS clients need
// and the yt namespace carries the stable ids.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Author  atomAuthor  `xml:"author"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
	URI  string `xml:"uri"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	ID          string         `xml:"id"`
	VideoID     string         `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title       string         `xml:"title"`
	Links       []atomLink     `xml:"link"`
	Published   string         `xml:"published"`
	Updated     string         `xml:"updated"`
	Description string         `xml:"group>description"`
	Thumbnail   atomThumbnail  `xml:"group>thumbnail"`
	Community   *atomCommunity `xml:"group>community"`
}

type atomThumbnail struct {
	URL string `xml:"url,attr"`
}

type atomCommunity struct {
	Statistics *atomStatistics `xml:"http://search.yahoo.com/mrss/ statistics"`
}

type atomStatistics struct {
	Views uint64 `xml:"views,attr"`
}

func parseAtom(data []byte) (Channel, error) {
	var af atomFeed
	if err := xml.Unmarshal(data, &af); err != nil {
		return Channel{}, fmt.Errorf("parse atom feed: %w", err)
	}

	channel := Channel{
		Title:       af.Title,
		Description: af.Title,
		Link:        pickAtomLink(af.Links, af.Author.URI),
	}

	for _, entry := range af.Entries {
		item := Item{
			ID:          entry.ID,
			Title:       entry.Title,
			Description: entry.Description,
			Link:        pickAtomLink(entry.Links, ""),
			ImageURL:    entry.Thumbnail.URL,
			PubDate:     parseAtomTime(entry.Published, entry.Updated),
		}
		if item.ID == "" {
			item.ID = entry.VideoID
		}
		if entry.Community != nil && entry.Community.Statistics != nil {
			views := entry.Community.Statistics.Views
			item.Views = &views
		}
		channel.Items = append(channel.Items, item)
	}

	// YouTube Atom feeds carry no channel-level artwork, fall back to the
	// newest entry's thumbnail.
	if channel.ImageURL == "" {
		for _, item := range channel.Items {
			if item.ImageURL != "" {
				channel.ImageURL = item.ImageURL
				break
			}
		}
	}

	return channel, nil
}

func pickAtomLink(links []atomLink, fallback string) string {
	for _, l := range links {
		if l.Rel == "alternate" && l.Href != "" {
			return l.Href
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return l.Href
		}
	}
	return fallback
}

func parseAtomTime(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, c); err == nil {
			return ts
		}
	}
	return time.Time{}
}
