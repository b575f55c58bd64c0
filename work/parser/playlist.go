package parser

import (
	"strings"

	"github.com/grafana/regexp"

	"kptv-browser/work/types"
)

// ExtinfMarker opens every channel metadata line.
const ExtinfMarker = "#EXTINF"

var (
	logoAttr  = regexp.MustCompile(`tvg-logo="(.*?)"`)
	groupAttr = regexp.MustCompile(`group-title="(.*?)"`)
)

// Parse converts playlist text into channels in document order. A channel is
// only recognised when a metadata line is immediately followed by a non-empty,
// non-directive URL line; anything else is skipped. Parse never fails.
func Parse(text string) []types.Channel {
	lines := strings.Split(text, "\n")
	channels := make([]types.Channel, 0, len(lines)/2)

	for i := 0; i < len(lines); i++ {
		meta := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(meta, ExtinfMarker) {
			continue
		}
		if i+1 >= len(lines) {
			break
		}

		url := strings.TrimSpace(lines[i+1])
		if url == "" || strings.HasPrefix(url, "#") {
			continue
		}

		channels = append(channels, ParseExtinf(meta, url))
		i++
	}

	return channels
}

// ParseExtinf builds a channel from one metadata line and its URL.
func ParseExtinf(meta, url string) types.Channel {
	ch := types.Channel{
		Name:      types.DefaultName,
		Group:     types.DefaultGroup,
		StreamURL: url,
	}

	if name, ok := displayName(meta); ok {
		ch.Name = name
	}
	if m := logoAttr.FindStringSubmatch(meta); m != nil {
		ch.LogoURL = m[1]
	}
	if m := groupAttr.FindStringSubmatch(meta); m != nil && m[1] != "" {
		ch.Group = m[1]
	}

	return ch
}

// displayName returns the trimmed text after the last comma that is not inside
// a quoted attribute value.
func displayName(meta string) (string, bool) {
	inQuotes := false
	for i := len(meta) - 1; i >= 0; i-- {
		switch meta[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if inQuotes {
				continue
			}
			name := strings.TrimSpace(meta[i+1:])
			return name, name != ""
		}
	}
	return "", false
}

// Dedupe drops every channel whose identity already appeared earlier, keeping
// the first occurrence and the original order.
func Dedupe(channels []types.Channel) []types.Channel {
	seen := make(map[types.Identity]struct{}, len(channels))
	out := make([]types.Channel, 0, len(channels))
	for _, ch := range channels {
		id := ch.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, ch)
	}
	return out
}
