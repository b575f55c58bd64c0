package hls

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"kptv-browser/work/logger"
	"kptv-browser/work/types"
)

// ParseManifest decodes an HLS manifest fetched from baseURL. A master playlist
// yields one quality level per variant in manifest order, with variant URIs
// resolved against baseURL. A media playlist yields no levels.
func ParseManifest(r io.Reader, baseURL string) ([]types.QualityLevel, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	if listType != m3u8.MASTER {
		return nil, nil
	}

	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected master playlist type %T", playlist)
	}

	levels := make([]types.QualityLevel, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		level := types.QualityLevel{
			Index:     len(levels),
			Bandwidth: v.Bandwidth,
			Height:    resolutionHeight(v.Resolution),
			URI:       resolveURL(v.URI, baseURL),
		}
		level.Label = levelLabel(level)
		levels = append(levels, level)
	}

	return levels, nil
}

// resolutionHeight extracts the height from a "WIDTHxHEIGHT" resolution.
func resolutionHeight(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height < 0 {
		return 0
	}
	return height
}

func levelLabel(l types.QualityLevel) string {
	switch {
	case l.Height > 0:
		return strconv.Itoa(l.Height) + "p"
	case l.Bandwidth > 0:
		return strconv.Itoa(int(l.Bandwidth/1000)) + " kbps"
	default:
		return "Level " + strconv.Itoa(l.Index+1)
	}
}

// resolveURL makes a variant URI absolute against the manifest URL. Absolute
// URIs and anything that fails to parse are returned unchanged.
func resolveURL(streamURL, baseURL string) string {
	if strings.HasPrefix(streamURL, "http://") || strings.HasPrefix(streamURL, "https://") {
		return streamURL
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		logger.Debug("{hls - resolveURL} bad base URL: %v", err)
		return streamURL
	}
	rel, err := url.Parse(streamURL)
	if err != nil {
		logger.Debug("{hls - resolveURL} bad variant URI: %v", err)
		return streamURL
	}

	return base.ResolveReference(rel).String()
}
