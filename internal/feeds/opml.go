package feeds

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// OPML structures for parsing subscription exports from other podcast apps.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// OPMLFeed is one subscription found in an OPML document.
type OPMLFeed struct {
	Title   string
	FeedURL string
}

// ReadOPML returns every outline with a feed URL, folders flattened, in
// document order. Duplicate URLs are reported once.
func ReadOPML(r io.Reader) ([]OPMLFeed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	seen := make(map[string]bool)
	var out []OPMLFeed
	var walk func(outlines []OPMLOutline)
	walk = func(outlines []OPMLOutline) {
		for _, o := range outlines {
			if u := strings.TrimSpace(o.XMLURL); u != "" && !seen[u] {
				seen[u] = true
				title := o.Title
				if title == "" {
					title = o.Text
				}
				out = append(out, OPMLFeed{Title: title, FeedURL: u})
			}
			if len(o.Outlines) > 0 {
				walk(o.Outlines)
			}
		}
	}
	walk(doc.Body.Outlines)
	return out, nil
}
