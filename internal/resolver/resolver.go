// Package resolver turns a share URL pasted by a user into the URL of a
// syndication feed. Platform-specific lookups are Strategy values selected
// by URL; anything unclaimed falls through to a generic page scan.
package resolver

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/matthewjhunter/podhub/internal/config"
	"github.com/matthewjhunter/podhub/internal/errs"
	"github.com/matthewjhunter/podhub/internal/fetch"
	"github.com/sirupsen/logrus"
)

// FeedRef is the outcome of a successful resolution. Title and CoverURL are
// hints scraped from the share page; the feed's own metadata wins when present.
type FeedRef struct {
	FeedURL  string `json:"feed_url"`
	ShareURL string `json:"share_url"`
	Platform string `json:"platform"`
	Title    string `json:"title,omitempty"`
	CoverURL string `json:"cover_url,omitempty"`
}

// Getter is the subset of fetch.Client the strategies need.
type Getter interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*fetch.Response, error)
}

// Strategy resolves share URLs for one family of links.
type Strategy interface {
	Name() string
	// Match reports whether this strategy claims u. It must not do I/O.
	Match(u *url.URL) bool
	Resolve(ctx context.Context, get Getter, u *url.URL) (*FeedRef, error)
}

// Resolver holds an ordered strategy list; the first match wins and the page
// scanner handles whatever is left.
type Resolver struct {
	get        Getter
	strategies []Strategy
	fallback   Strategy
	log        *logrus.Entry
}

// New builds a resolver with the built-in strategies configured from cfg.
func New(get Getter, cfg config.PlatformsConfig, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		get: get,
		strategies: []Strategy{
			directStrategy{},
			&xiaoyuzhouStrategy{hosts: cfg.Xiaoyuzhou.Hosts, prefix: cfg.Xiaoyuzhou.FeedPrefix},
			&neteaseStrategy{hosts: cfg.Netease.Hosts, prefix: cfg.Netease.FeedPrefix},
			&appleStrategy{hosts: cfg.Apple.Hosts, lookupURL: cfg.Apple.LookupURL},
		},
		fallback: pageStrategy{},
		log:      log.WithField("component", "resolver"),
	}
}

// Register adds a strategy ahead of the built-ins so new share-link sources
// can be supported without touching the resolution flow.
func (r *Resolver) Register(s Strategy) {
	r.strategies = append([]Strategy{s}, r.strategies...)
}

// Resolve determines the feed URL behind shareURL. It performs no retries
// and writes nothing.
func (r *Resolver) Resolve(ctx context.Context, shareURL string) (*FeedRef, error) {
	u, err := Validate(shareURL)
	if err != nil {
		return nil, err
	}

	strategy := r.fallback
	for _, s := range r.strategies {
		if s.Match(u) {
			strategy = s
			break
		}
	}

	log := r.log.WithFields(logrus.Fields{"share_url": u.String(), "strategy": strategy.Name()})
	ref, err := strategy.Resolve(ctx, r.get, u)
	if err != nil {
		log.WithError(err).Debug("resolution failed")
		return nil, err
	}
	ref.ShareURL = u.String()
	if ref.Platform == "" {
		ref.Platform = strategy.Name()
	}
	log.WithField("feed_url", ref.FeedURL).Info("resolved share url")
	return ref, nil
}

// Validate checks that raw is an absolute http(s) URL with a host.
func Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.New(errs.InvalidInput, "share url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "malformed share url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.New(errs.InvalidInput, "share url %q must use http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, errs.New(errs.InvalidInput, "share url %q has no host", raw)
	}
	return u, nil
}

// hostMatches reports whether host is one of domains or a subdomain of one.
func hostMatches(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
