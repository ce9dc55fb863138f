// SPDX-License-Identifier: MIT

package feed

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/vodcast/internal/duration"
)

const xmlnsItunes = "http://www.itunes.com/dtds/podcast-1.0.dtd"

// pubDateFormats covers what podcast generators actually emit. RFC 1123 with
// a numeric zone is the RSS 2.0 norm but RFC 3339 shows up in the wild.
var pubDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// Inbound carrier. Field tags use local names only, so itunes: and media:
// extensions decode regardless of the prefix the generator chose.

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	Link        string     `xml:"link"`
	Language    string     `xml:"language"`
	Images      []rssImage `xml:"image"`
	Items       []rssItem  `xml:"item"`
}

// rssImage absorbs both <image><url>…</url></image> and
// <itunes:image href="…"/>, which share the local name.
type rssImage struct {
	Href string `xml:"href,attr"`
	URL  string `xml:"url"`
}

func (i rssImage) value() string {
	if i.Href != "" {
		return i.Href
	}
	return i.URL
}

type rssItem struct {
	Title       string          `xml:"title"`
	Description string          `xml:"description"`
	Link        string          `xml:"link"`
	GUID        rssGUID         `xml:"guid"`
	PubDate     string          `xml:"pubDate"`
	Enclosures  []rssEnclosure  `xml:"enclosure"`
	Durations   []string        `xml:"duration"`
	Images      []rssImage      `xml:"image"`
	Statistics  []rssStatistics `xml:"statistics"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink string `xml:"isPermaLink,attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

type rssStatistics struct {
	Views *uint64 `xml:"views,attr"`
}

func parseRSS(data []byte) (Channel, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return Channel{}, fmt.Errorf("parse rss feed: %w", err)
	}

	rc := root.Channel
	channel := Channel{
		Title:       rc.Title,
		Description: rc.Description,
		Link:        rc.Link,
		Language:    rc.Language,
	}
	for _, img := range rc.Images {
		if v := img.value(); v != "" {
			channel.ImageURL = v
			break
		}
	}

	for _, ri := range rc.Items {
		item := Item{
			ID:          ri.GUID.Value,
			Title:       ri.Title,
			Description: ri.Description,
			Link:        ri.Link,
			PubDate:     parsePubDate(ri.PubDate),
		}
		if item.ID == "" {
			item.ID = ri.Link
		}
		for _, img := range ri.Images {
			if v := img.value(); v != "" {
				item.ImageURL = v
				break
			}
		}
		for _, d := range ri.Durations {
			if secs, err := duration.Parse(d); err == nil && secs > 0 {
				item.DurationSecs = secs
				break
			}
		}
		for _, enc := range ri.Enclosures {
			if enc.URL == "" {
				continue
			}
			length, _ := strconv.ParseInt(enc.Length, 10, 64)
			item.Media = append(item.Media, MediaRef{URL: enc.URL, Type: enc.Type, Length: length})
		}
		for _, st := range ri.Statistics {
			if st.Views != nil {
				views := *st.Views
				item.Views = &views
				break
			}
		}
		channel.Items = append(channel.Items, item)
	}

	return channel, nil
}

// parsePubDate tries the common date formats. Anything unparsable becomes the
// zero time, which sorts behind every real date.
func parsePubDate(s string) time.Time {
	for _, format := range pubDateFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// Outbound carrier.

type rssOutRoot struct {
	XMLName  xml.Name      `xml:"rss"`
	Version  string        `xml:"version,attr"`
	NSItunes string        `xml:"xmlns:itunes,attr"`
	Channel  rssOutChannel `xml:"channel"`
}

type rssOutChannel struct {
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	Link        string       `xml:"link"`
	Language    string       `xml:"language,omitempty"`
	Generator   string       `xml:"generator,omitempty"`
	Image       *rssOutImage `xml:"itunes:image,omitempty"`
	Items       []rssOutItem `xml:"item"`
}

type rssOutImage struct {
	Href string `xml:"href,attr"`
}

type rssOutItem struct {
	Title       string           `xml:"title"`
	Description string           `xml:"description,omitempty"`
	Link        string           `xml:"link,omitempty"`
	GUID        *rssOutGUID      `xml:"guid,omitempty"`
	PubDate     string           `xml:"pubDate,omitempty"`
	Enclosure   *rssOutEnclosure `xml:"enclosure,omitempty"`
	Duration    string           `xml:"itunes:duration,omitempty"`
	Image       *rssOutImage     `xml:"itunes:image,omitempty"`
}

type rssOutGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink string `xml:"isPermaLink,attr"`
}

type rssOutEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

// WriteRSS serializes the neutral model as RSS 2.0 with the itunes extension.
func WriteRSS(c Channel) ([]byte, error) {
	out := rssOutRoot{
		Version:  "2.0",
		NSItunes: xmlnsItunes,
		Channel: rssOutChannel{
			Title:       c.Title,
			Description: c.Description,
			Link:        c.Link,
			Language:    c.Language,
			Generator:   c.Generator,
		},
	}
	if c.ImageURL != "" {
		out.Channel.Image = &rssOutImage{Href: c.ImageURL}
	}

	for _, item := range c.Items {
		oi := rssOutItem{
			Title:       item.Title,
			Description: item.Description,
			Link:        item.Link,
		}
		if item.ID != "" {
			permalink := "false"
			if item.GUIDIsPermaLink {
				permalink = "true"
			}
			oi.GUID = &rssOutGUID{Value: item.ID, IsPermaLink: permalink}
		}
		if !item.PubDate.IsZero() {
			oi.PubDate = item.PubDate.Format(time.RFC1123Z)
		}
		if item.DurationSecs > 0 {
			oi.Duration = duration.Clock(item.DurationSecs)
		}
		if item.ImageURL != "" {
			oi.Image = &rssOutImage{Href: item.ImageURL}
		}
		if len(item.Media) > 0 {
			first := item.Media[0]
			oi.Enclosure = &rssOutEnclosure{URL: first.URL, Type: first.Type, Length: first.Length}
		}
		out.Channel.Items = append(out.Channel.Items, oi)
	}

	body, err := xml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("serialize rss: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
