package logscrape

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/chatlogs/logscrape/record"
)

// DefaultBaseURL is the archive the scraper was written for.
const DefaultBaseURL = "https://botbot.me"

// ArchiveURL builds the page URL for a channel's day containing t:
// {base}/{network}/{channel}/{YYYY-MM-DD}/. The day is taken in UTC.
func ArchiveURL(baseURL, network, channel string, t time.Time) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/%s/%s/",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(network),
		url.PathEscape(channel),
		t.UTC().Format(time.DateOnly))
}

// DefaultOutputPath is the transcript file used when none is configured:
// chatlogs/{network}_{channel}_{start}_{end}.json with MMDDYYYYhhmm stamps.
func DefaultOutputPath(w record.Window) string {
	const stamp = "010220061504"
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		w.Network, w.Channel, w.Start.Format(stamp), w.End.Format(stamp))
	return filepath.Join("chatlogs", name)
}
