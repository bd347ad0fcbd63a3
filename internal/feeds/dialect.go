package feeds

import (
	"math"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Audio is the playable reference chosen for an item.
type Audio struct {
	URL  string
	Type string

	// duration attribute carried by the element itself, if any
	duration string
}

// Dialect extracts audio and duration from items of one feed flavour.
// Both dialects produce the same draft shape.
type Dialect interface {
	Name() string
	Audio(item *gofeed.Item) (Audio, bool)
	Duration(item *gofeed.Item, audio Audio) *int
}

// detectDialect picks the media dialect when any item carries media:
// extension elements, and the simple dialect otherwise.
func detectDialect(feed *gofeed.Feed) Dialect {
	for _, item := range feed.Items {
		if len(item.Extensions["media"]) > 0 {
			return mediaDialect{}
		}
	}
	return simpleDialect{}
}

// simpleDialect reads <enclosure> (and Atom rel=enclosure links, which
// gofeed folds into Enclosures) plus itunes:duration.
type simpleDialect struct{}

func (simpleDialect) Name() string { return "simple" }

func (simpleDialect) Audio(item *gofeed.Item) (Audio, bool) {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		u := strings.TrimSpace(enc.URL)
		if u == "" {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(enc.Type))
		if strings.HasPrefix(typ, "audio/") {
			return Audio{URL: u, Type: typ}, true
		}
		if (typ == "" || typ == "application/octet-stream") && hasAudioExtension(u) {
			return Audio{URL: u, Type: typ}, true
		}
	}
	return Audio{}, false
}

func (simpleDialect) Duration(item *gofeed.Item, _ Audio) *int {
	if item.ITunesExt == nil {
		return nil
	}
	return parseDuration(item.ITunesExt.Duration)
}

// mediaDialect reads Media RSS media:content, directly on the item or
// inside media:group, and falls back to the simple dialect.
type mediaDialect struct{}

func (mediaDialect) Name() string { return "media" }

func (mediaDialect) Audio(item *gofeed.Item) (Audio, bool) {
	for _, c := range mediaContents(item) {
		u := strings.TrimSpace(c.Attrs["url"])
		if u == "" {
			continue
		}
		typ := strings.ToLower(strings.TrimSpace(c.Attrs["type"]))
		medium := strings.ToLower(strings.TrimSpace(c.Attrs["medium"]))
		if strings.HasPrefix(typ, "audio/") || medium == "audio" {
			return Audio{URL: u, Type: typ, duration: c.Attrs["duration"]}, true
		}
	}
	return simpleDialect{}.Audio(item)
}

func (mediaDialect) Duration(item *gofeed.Item, audio Audio) *int {
	if d := parseDuration(audio.duration); d != nil {
		return d
	}
	return simpleDialect{}.Duration(item, audio)
}

func mediaContents(item *gofeed.Item) []ext.Extension {
	media := item.Extensions["media"]
	if media == nil {
		return nil
	}
	contents := append([]ext.Extension(nil), media["content"]...)
	for _, group := range media["group"] {
		contents = append(contents, group.Children["content"]...)
	}
	return contents
}

var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".m4b": true, ".aac": true, ".ogg": true,
	".oga": true, ".opus": true, ".wav": true, ".flac": true,
}

func hasAudioExtension(raw string) bool {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return audioExtensions[strings.ToLower(path.Ext(p))]
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// maxDuration caps a stored duration at about 68 years of seconds; larger
// values are treated as garbage rather than wrapped.
const maxDuration = math.MaxInt32

// parseDuration accepts integer seconds, MM:SS, HH:MM:SS and ISO-8601
// PT#H#M#S. Anything else, including out-of-range values, is nil.
func parseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if up := strings.ToUpper(s); up != "PT" {
		if m := isoDuration.FindStringSubmatch(up); m != nil {
			var total float64
			for i, unit := range []float64{3600, 60, 1} {
				f, err := strconv.ParseFloat(orZero(m[i+1]), 64)
				if err != nil {
					return nil
				}
				total += f * unit
			}
			return boundedSeconds(math.Floor(total))
		}
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return nil
		}
		var total float64
		for i, part := range parts {
			n, err := strconv.ParseUint(part, 10, 32)
			if err != nil {
				return nil
			}
			// everything after the leading field is base 60
			if i > 0 && n >= 60 {
				return nil
			}
			total = total*60 + float64(n)
		}
		return boundedSeconds(total)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return boundedSeconds(math.Floor(f))
}

func boundedSeconds(f float64) *int {
	if math.IsNaN(f) || f < 0 || f > maxDuration {
		return nil
	}
	total := int(f)
	return &total
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
