package feeds

import (
	"strings"
	"testing"
)

func TestReadOPML(t *testing.T) {
	opml := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline text="Tech" title="Tech Cast" type="rss" xmlUrl="https://example.com/tech.xml"/>
    <outline text="News" type="rss" xmlUrl="https://example.com/news.xml"/>
  </body>
</opml>`

	feeds, err := ReadOPML(strings.NewReader(opml))
	if err != nil {
		t.Fatalf("ReadOPML failed: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].Title != "Tech Cast" || feeds[1].Title != "News" {
		t.Errorf("unexpected titles: %+v", feeds)
	}
}

func TestReadOPML_NestedFolders(t *testing.T) {
	opml := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline text="Technology">
      <outline text="Security">
        <outline text="Krebs" type="rss" xmlUrl="https://example.com/krebs.xml"/>
      </outline>
      <outline text="Dev" type="rss" xmlUrl="https://example.com/dev.xml"/>
    </outline>
    <outline text="Top Level" type="rss" xmlUrl="https://example.com/top.xml"/>
  </body>
</opml>`

	feeds, err := ReadOPML(strings.NewReader(opml))
	if err != nil {
		t.Fatalf("ReadOPML failed: %v", err)
	}
	if len(feeds) != 3 {
		t.Fatalf("expected 3 feeds from nested OPML, got %d", len(feeds))
	}
	if feeds[0].FeedURL != "https://example.com/krebs.xml" {
		t.Errorf("document order not kept: %+v", feeds)
	}
}

func TestReadOPML_DuplicateFeeds(t *testing.T) {
	opml := `<opml version="2.0"><body>
    <outline text="A" xmlUrl="https://example.com/a.xml"/>
    <outline text="A again" xmlUrl=" https://example.com/a.xml "/>
  </body></opml>`

	feeds, err := ReadOPML(strings.NewReader(opml))
	if err != nil {
		t.Fatalf("ReadOPML failed: %v", err)
	}
	if len(feeds) != 1 {
		t.Errorf("expected 1 feed after dedup, got %d", len(feeds))
	}
}

func TestReadOPML_Invalid(t *testing.T) {
	if _, err := ReadOPML(strings.NewReader("not xml at all <")); err == nil {
		t.Fatal("expected error for invalid OPML, got nil")
	}
}
