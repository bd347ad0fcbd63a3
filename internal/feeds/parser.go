package feeds

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"html"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matthewjhunter/podhub/internal/errs"
	"github.com/matthewjhunter/podhub/internal/fetch"
	"github.com/matthewjhunter/podhub/internal/storage"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

// maxShowDescription is the rune limit for a show's plain-text description.
const maxShowDescription = 500

// Getter fetches a URL. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*fetch.Response, error)
}

// Parser fetches syndication documents and normalizes them into drafts.
type Parser struct {
	get    Getter
	log    *logrus.Entry
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
}

// Result holds the outcome of a (conditional) feed parse.
type Result struct {
	Show     storage.ShowDraft
	Episodes []storage.EpisodeDraft // feed order
	Skipped  int                    // items dropped for a missing title or audio
	Dialect  string

	ETag         string // from the response, empty if absent
	LastModified string
	NotModified  bool // server answered 304; Show and Episodes are empty
}

func NewParser(get Getter, log *logrus.Entry) *Parser {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Parser{
		get:    get,
		log:    log,
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
	}
}

// ParseFeed fetches feedURL and parses it. When etag or lastModified are
// set they are sent as If-None-Match / If-Modified-Since, and a 304
// response skips parsing and returns NotModified=true.
func (p *Parser) ParseFeed(ctx context.Context, feedURL, etag, lastModified string) (*Result, error) {
	header := http.Header{}
	if etag != "" {
		header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		header.Set("If-Modified-Since", lastModified)
	}

	resp, err := p.get.Get(ctx, feedURL, header)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotModified {
		return &Result{NotModified: true, ETag: etag, LastModified: lastModified}, nil
	}

	res, err := p.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	res.ETag = resp.Header.Get("ETag")
	res.LastModified = resp.Header.Get("Last-Modified")
	return res, nil
}

// Parse normalizes a syndication document. A document that is not RSS,
// Atom or JSON Feed at all yields a ParseError; broken items are skipped.
func (p *Parser) Parse(body []byte) (*Result, error) {
	// gofeed parsers keep per-document state, so one per call.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "not a syndication document")
	}

	dialect := detectDialect(feed)
	res := &Result{
		Show:    p.showDraft(feed),
		Dialect: dialect.Name(),
	}

	for i, item := range feed.Items {
		ep, reason := p.episodeDraft(dialect, item)
		if reason != "" {
			res.Skipped++
			p.log.WithFields(logrus.Fields{
				"item":   i,
				"title":  strings.TrimSpace(item.Title),
				"reason": reason,
			}).Debug("skipping feed item")
			continue
		}
		res.Episodes = append(res.Episodes, ep)
	}
	return res, nil
}

func (p *Parser) showDraft(feed *gofeed.Feed) storage.ShowDraft {
	d := storage.ShowDraft{Title: strings.TrimSpace(feed.Title)}

	if feed.ITunesExt != nil {
		d.Author = strings.TrimSpace(feed.ITunesExt.Author)
		d.CoverURL = strings.TrimSpace(feed.ITunesExt.Image)
	}
	if d.Author == "" {
		for _, a := range feed.Authors {
			if a != nil && strings.TrimSpace(a.Name) != "" {
				d.Author = strings.TrimSpace(a.Name)
				break
			}
		}
	}
	if d.CoverURL == "" && feed.Image != nil {
		d.CoverURL = strings.TrimSpace(feed.Image.URL)
	}

	desc := feed.Description
	if desc == "" && feed.ITunesExt != nil {
		desc = feed.ITunesExt.Summary
	}
	d.Description = p.plainText(desc, maxShowDescription)
	return d
}

// episodeDraft returns the draft for item, or the reason it was skipped.
func (p *Parser) episodeDraft(dialect Dialect, item *gofeed.Item) (storage.EpisodeDraft, string) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return storage.EpisodeDraft{}, "missing title"
	}
	audio, ok := dialect.Audio(item)
	if !ok {
		return storage.EpisodeDraft{}, "no audio enclosure"
	}

	published := item.PublishedParsed
	if published == nil {
		published = parseDate(item.Published)
	}
	if published != nil {
		utc := published.UTC()
		published = &utc
	}

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}

	guid := strings.TrimSpace(item.GUID)
	return storage.EpisodeDraft{
		IdentityKey: identityKey(guid, title, item.Published),
		GUID:        guid,
		Title:       title,
		AudioURL:    audio.URL,
		AudioType:   audio.Type,
		PublishedAt: published,
		Duration:    dialect.Duration(item, audio),
		Description: strings.TrimSpace(p.ugc.Sanitize(desc)),
	}, ""
}

// plainText strips markup, unescapes entities and cuts to limit runes.
func (p *Parser) plainText(s string, limit int) string {
	s = strings.TrimSpace(html.UnescapeString(p.strict.Sanitize(s)))
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// identityKey is the trimmed GUID, or a hash of title and the raw publish
// date text for items that carry no GUID.
func identityKey(guid, title, published string) string {
	if guid != "" {
		return guid
	}
	sum := sha1.Sum([]byte(title + "\n" + strings.TrimSpace(published)))
	return "sha1:" + hex.EncodeToString(sum[:])
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate tries the accepted layouts in order; nil when none fit.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
