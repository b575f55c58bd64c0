package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kptv-browser/work/config"
)

func TestObfuscateURL(t *testing.T) {
	assert.Equal(t, "http://example.com/***?***", ObfuscateURL("http://example.com/secret/stream.m3u8?token=abc"))
	assert.Equal(t, "https://example.com", ObfuscateURL("https://example.com/"))
	assert.Equal(t, "", ObfuscateURL(""))
}

func TestLogURLHonoursConfig(t *testing.T) {
	raw := "http://example.com/live/1.ts"
	assert.Equal(t, raw, LogURL(&config.Config{}, raw))
	assert.Equal(t, "http://example.com/***", LogURL(&config.Config{ObfuscateUrls: true}, raw))
	assert.Equal(t, raw, LogURL(nil, raw))
}

func TestURLPathHasSuffix(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://x/live/index.m3u8", true},
		{"http://x/live/INDEX.M3U8?token=1", true},
		{"http://x/live/index.m3u8#t=3", true},
		{"http://x/video.mp4", false},
		{"http://x/m3u8/video.mp4", false},
		{"rtmp://x/stream", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, URLPathHasSuffix(c.url, ".m3u8"), c.url)
	}
}
