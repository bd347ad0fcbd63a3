package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/matthewjhunter/podhub"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, text or human)", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

func (f *Formatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OutputShow prints a single show.
func (f *Formatter) OutputShow(s *podhub.Show) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(s)
	case FormatText:
		fmt.Fprintf(f.out, "id=%d\ttitle=%s\tfeed=%s\tepisodes=%d\tfavorite=%t\n",
			s.ID, s.Title, s.FeedURL, s.EpisodeCount, s.Favorite)
		return nil
	case FormatHuman:
		star := ""
		if s.Favorite {
			star = " ★"
		}
		fmt.Fprintf(f.out, "%s%s\n", s.Title, star)
		fmt.Fprintln(f.out, strings.Repeat("=", 60))
		if s.Author != "" {
			fmt.Fprintf(f.out, "Author:     %s\n", s.Author)
		}
		fmt.Fprintf(f.out, "ID:         %d\n", s.ID)
		fmt.Fprintf(f.out, "Feed:       %s\n", s.FeedURL)
		if s.ShareURL != "" && s.ShareURL != s.FeedURL {
			fmt.Fprintf(f.out, "Shared as:  %s (%s)\n", s.ShareURL, s.Platform)
		}
		fmt.Fprintf(f.out, "Episodes:   %d\n", s.EpisodeCount)
		fmt.Fprintf(f.out, "Subscribed: %s\n", humanize.Time(s.SubscribedAt))
		if s.LastSyncedAt != nil {
			fmt.Fprintf(f.out, "Synced:     %s\n", humanize.Time(*s.LastSyncedAt))
		}
		if s.LastError != nil {
			fmt.Fprintf(f.out, "Last error: %s\n", *s.LastError)
		}
		if s.Description != "" {
			fmt.Fprintf(f.out, "\n%s\n", s.Description)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputShowList prints shows; empty is the message used when there are none.
func (f *Formatter) OutputShowList(shows []podhub.Show, empty string) error {
	switch f.format {
	case FormatJSON:
		if shows == nil {
			shows = []podhub.Show{}
		}
		return f.writeJSON(shows)
	case FormatText:
		for _, s := range shows {
			fmt.Fprintf(f.out, "id=%d\ttitle=%s\tepisodes=%d\tfavorite=%t\tfeed=%s\n",
				s.ID, s.Title, s.EpisodeCount, s.Favorite, s.FeedURL)
		}
		return nil
	case FormatHuman:
		if len(shows) == 0 {
			fmt.Fprintln(f.out, empty)
			return nil
		}
		rows := make([][]string, 0, len(shows))
		for _, s := range shows {
			fav := ""
			if s.Favorite {
				fav = "★"
			}
			rows = append(rows, []string{
				fmt.Sprint(s.ID), truncate(s.Title, 40), truncate(s.Author, 24),
				fmt.Sprint(s.EpisodeCount), fav, humanize.Time(s.SubscribedAt),
			})
		}
		fmt.Fprintln(f.out, renderTable(
			[]string{"ID", "Title", "Author", "Episodes", "Fav", "Subscribed"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputEpisodes prints a show's episodes.
func (f *Formatter) OutputEpisodes(episodes []podhub.Episode) error {
	switch f.format {
	case FormatJSON:
		if episodes == nil {
			episodes = []podhub.Episode{}
		}
		return f.writeJSON(episodes)
	case FormatText:
		for _, ep := range episodes {
			fmt.Fprintf(f.out, "id=%d\ttitle=%s\tpublished=%s\tduration=%s\tprogress=%d\tplayed=%t\taudio=%s\n",
				ep.ID, ep.Title, formatTime(ep.PublishedAt), durationSeconds(ep.Duration), ep.Progress, ep.Played, ep.AudioURL)
		}
		return nil
	case FormatHuman:
		if len(episodes) == 0 {
			fmt.Fprintln(f.out, "No episodes")
			return nil
		}
		rows := make([][]string, 0, len(episodes))
		for _, ep := range episodes {
			published := "-"
			if ep.PublishedAt != nil {
				published = ep.PublishedAt.Format("2006-01-02")
			}
			rows = append(rows, []string{
				fmt.Sprint(ep.ID), truncate(ep.Title, 50), published, formatDuration(ep.Duration), progressCell(ep),
			})
		}
		fmt.Fprintln(f.out, renderTable(
			[]string{"ID", "Title", "Published", "Length", "Heard"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPlay prints what to play.
func (f *Formatter) OutputPlay(p *podhub.PlayResult) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(p)
	case FormatText:
		fmt.Fprintf(f.out, "episode=%d\ttitle=%s\tshow=%s\taudio=%s\n", p.EpisodeID, p.Title, p.ShowTitle, p.AudioURL)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "▶ %s: %s", p.ShowTitle, p.Title)
		if p.Duration != nil {
			fmt.Fprintf(f.out, " (%s)", formatDuration(p.Duration))
		}
		fmt.Fprintf(f.out, "\n%s\n", p.AudioURL)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputProgress prints an episode after its progress was saved.
func (f *Formatter) OutputProgress(ep *podhub.Episode) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(ep)
	case FormatText:
		fmt.Fprintf(f.out, "episode=%d\tprogress=%d\tplayed_at=%s\n", ep.ID, ep.Progress, formatTime(ep.PlayedAt))
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s: saved position %s", ep.Title, formatDuration(&ep.Progress))
		if ep.Duration != nil {
			fmt.Fprintf(f.out, " of %s", formatDuration(ep.Duration))
		}
		fmt.Fprintln(f.out)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputFavorite prints the result of a favorite toggle.
func (f *Formatter) OutputFavorite(showID int64, favorite bool) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(map[string]any{"show_id": showID, "favorite": favorite})
	case FormatText:
		fmt.Fprintf(f.out, "show=%d\tfavorite=%t\n", showID, favorite)
		return nil
	case FormatHuman:
		if favorite {
			fmt.Fprintf(f.out, "★ Show %d added to favorites\n", showID)
		} else {
			fmt.Fprintf(f.out, "Show %d removed from favorites\n", showID)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputHistory prints play history.
func (f *Formatter) OutputHistory(entries []podhub.HistoryEntry) error {
	switch f.format {
	case FormatJSON:
		if entries == nil {
			entries = []podhub.HistoryEntry{}
		}
		return f.writeJSON(entries)
	case FormatText:
		for _, h := range entries {
			fmt.Fprintf(f.out, "played=%s\tshow=%s\tepisode=%s\taudio=%s\n",
				h.PlayedAt.Format(time.RFC3339), h.ShowTitle, h.EpisodeTitle, h.AudioURL)
		}
		return nil
	case FormatHuman:
		if len(entries) == 0 {
			fmt.Fprintln(f.out, "Nothing played yet")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, h := range entries {
			rows = append(rows, []string{
				humanize.Time(h.PlayedAt), truncate(h.ShowTitle, 30), truncate(h.EpisodeTitle, 45),
				formatDuration(h.Duration),
			})
		}
		fmt.Fprintln(f.out, renderTable(
			[]string{"Played", "Show", "Episode", "Length"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputRefresh prints a single-show refresh.
func (f *Formatter) OutputRefresh(r *podhub.RefreshResult) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(r)
	case FormatText:
		fmt.Fprintf(f.out, "show=%d\tadded=%d\tupdated=%d\tskipped=%d\tnot_modified=%t\n",
			r.ShowID, r.Added, r.Updated, r.Skipped, r.NotModified)
		return nil
	case FormatHuman:
		if r.NotModified {
			fmt.Fprintf(f.out, "%s: up to date\n", r.Title)
			return nil
		}
		fmt.Fprintf(f.out, "%s: %d new, %d updated", r.Title, r.Added, r.Updated)
		if r.Skipped > 0 {
			fmt.Fprintf(f.out, ", %d unplayable items skipped", r.Skipped)
		}
		fmt.Fprintln(f.out)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputRefreshAll prints a refresh summary.
func (f *Formatter) OutputRefreshAll(r *podhub.RefreshAllResult) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(r)
	case FormatText:
		fmt.Fprintf(f.out, "total=%d\trefreshed=%d\tnot_modified=%d\tfailed=%d\tadded=%d\n",
			r.Total, r.Refreshed, r.NotModified, r.Failed, r.Added)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Refreshed %d of %d shows, %d new episodes\n", r.Refreshed, r.Total, r.Added)
		if r.NotModified > 0 {
			fmt.Fprintf(f.out, "%d unchanged\n", r.NotModified)
		}
		for _, res := range r.Results {
			if res.Error != "" {
				f.Warning("%s (%d): %s", res.Title, res.ShowID, res.Error)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStats prints listening statistics.
func (f *Formatter) OutputStats(s *podhub.Stats) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(s)
	case FormatText:
		fmt.Fprintf(f.out, "plays=%d\tseconds=%d\tshows=%d\tepisodes=%d\tfavorites=%d\n",
			s.TotalPlays, s.TotalSeconds, s.ShowCount, s.EpisodeCount, s.FavoriteCount)
		for _, sp := range s.TopShows {
			fmt.Fprintf(f.out, "top\tshow=%s\tplays=%d\n", sp.ShowTitle, sp.Plays)
		}
		return nil
	case FormatHuman:
		secs := int(s.TotalSeconds)
		fmt.Fprintf(f.out, "Shows:     %s (%s episodes, %d favorites)\n",
			humanize.Comma(int64(s.ShowCount)), humanize.Comma(int64(s.EpisodeCount)), s.FavoriteCount)
		fmt.Fprintf(f.out, "Plays:     %s\n", humanize.Comma(int64(s.TotalPlays)))
		fmt.Fprintf(f.out, "Listened:  %s\n", formatDuration(&secs))
		if len(s.TopShows) > 0 {
			rows := make([][]string, 0, len(s.TopShows))
			for i, sp := range s.TopShows {
				rows = append(rows, []string{humanize.Ordinal(i + 1), truncate(sp.ShowTitle, 40), fmt.Sprint(sp.Plays)})
			}
			fmt.Fprintln(f.out, renderTable([]string{"#", "Show", "Plays"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight}))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputImport prints an OPML import summary.
func (f *Formatter) OutputImport(r *podhub.ImportResult) error {
	switch f.format {
	case FormatJSON:
		return f.writeJSON(r)
	case FormatText:
		fmt.Fprintf(f.out, "total=%d\tadded=%d\texisting=%d\tfailed=%d\n", r.Total, r.Added, r.Existing, len(r.Failed))
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Added %d of %d feeds from OPML", r.Added, r.Total)
		if r.Existing > 0 {
			fmt.Fprintf(f.out, " (%d already subscribed)", r.Existing)
		}
		fmt.Fprintln(f.out)
		for _, fail := range r.Failed {
			f.Warning("%s: %s", fail.FeedURL, fail.Error)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputMessage prints a one-line confirmation.
func (f *Formatter) OutputMessage(msg string) error {
	if f.format == FormatJSON {
		return f.writeJSON(map[string]string{"message": msg})
	}
	fmt.Fprintln(f.out, msg)
	return nil
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...any) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...any) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// formatDuration renders seconds as H:MM:SS or M:SS; "-" when unknown.
func formatDuration(secs *int) string {
	if secs == nil {
		return "-"
	}
	d := *secs
	h, m, s := d/3600, (d%3600)/60, d%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// progressCell shows where the listener stopped, or a check once played.
func progressCell(ep podhub.Episode) string {
	switch {
	case ep.Progress > 0:
		return formatDuration(&ep.Progress)
	case ep.Played:
		return "✓"
	}
	return "-"
}

func durationSeconds(secs *int) string {
	if secs == nil {
		return ""
	}
	return fmt.Sprint(*secs)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
