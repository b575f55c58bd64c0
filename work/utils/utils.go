package utils

import (
	"net/url"
	"path"
	"strings"

	"kptv-browser/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(cfg *config.Config, rawURL string) string {
	if cfg != nil && cfg.ObfuscateUrls {
		return ObfuscateURL(rawURL)
	}
	return rawURL
}

// ObfuscateURL keeps scheme and host and masks path, query and fragment.
//
//	Input:  "http://example.com/secret/stream.m3u8?token=abc"
//	Output: "http://example.com/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

// URLPathHasSuffix reports whether the path of rawURL ends with suffix, ignoring
// case, query string and fragment. Unparseable input falls back to the raw string.
func URLPathHasSuffix(rawURL, suffix string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(path.Clean(p)), strings.ToLower(suffix))
}
