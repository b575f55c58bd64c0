package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"kptv-browser/work/logger"
)

// DefaultConfigPath is read when KPTV_BROWSER_CONFIG is not set.
const DefaultConfigPath = "/settings/config.json"

// Config holds all application configuration values for the channel browser.
type Config struct {
	ListenAddr         string         `json:"listenAddr"`         // HTTP listen address for the presentation API
	PageSize           int            `json:"pageSize"`           // Channels revealed per page of the filtered view
	LongPressThreshold time.Duration  `json:"longPressThreshold"` // Hold duration that turns a selection into a favorite toggle
	Dedupe             bool           `json:"dedupe"`             // Drop repeated (name, url) pairs after concatenating sources
	Locale             string         `json:"locale"`             // BCP 47 tag used for A-Z / Z-A name collation
	DatabasePath       string         `json:"databasePath"`       // SQLite file holding favorites and the view preference
	CacheEnabled       bool           `json:"cacheEnabled"`       // Reuse fetched playlist bodies within CacheDuration
	CacheDuration      time.Duration  `json:"cacheDuration"`      // Lifetime of a cached playlist body
	WorkerThreads      int            `json:"workerThreads"`      // Size of the fetch / manifest worker pool
	Debug              bool           `json:"debug"`              // Force DEBUG logging
	LogLevel           string         `json:"logLevel"`           // DEBUG, INFO, WARN or ERROR
	ObfuscateUrls      bool           `json:"obfuscateUrls"`      // Mask URL paths and queries in logs
	AdaptiveEnabled    bool           `json:"adaptiveEnabled"`    // Whether adaptive (HLS) playback is available
	PlaceholderLogo    string         `json:"placeholderLogo"`    // Logo substituted for channels without one
	DefaultView        string         `json:"defaultView"`        // list or grid, used until a preference is stored
	Sources            []SourceConfig `json:"sources"`            // Playlist sources, concatenated in Order
}

// SourceConfig describes one playlist document to ingest.
type SourceConfig struct {
	Name              string `json:"name"`                   // Descriptive name for the source
	URL               string `json:"url"`                    // URL of the playlist document
	Order             int    `json:"order"`                  // Position of this source in the concatenated catalog
	RequestsPerSecond int    `json:"requestsPerSecond"`      // Outbound request rate towards this source
	UserAgent         string `json:"userAgent"`              // HTTP User-Agent header for requests
	ReqOrigin         string `json:"reqOrigin"`              // HTTP Origin header for requests
	ReqReferrer       string `json:"reqReferrer"`            // HTTP Referer header for requests
	IncludeRegex      string `json:"includeRegex,omitempty"` // Keep only channels whose name matches
	ExcludeRegex      string `json:"excludeRegex,omitempty"` // Drop channels whose name matches
}

// ConfigFile represents the JSON file structure. Duration fields are strings
// (e.g. "30m") parsed into time.Duration values.
type ConfigFile struct {
	ListenAddr         string         `json:"listenAddr"`
	PageSize           int            `json:"pageSize"`
	LongPressThreshold string         `json:"longPressThreshold"`
	Dedupe             *bool          `json:"dedupe"`
	Locale             string         `json:"locale"`
	DatabasePath       string         `json:"databasePath"`
	CacheEnabled       bool           `json:"cacheEnabled"`
	CacheDuration      string         `json:"cacheDuration"`
	WorkerThreads      int            `json:"workerThreads"`
	Debug              bool           `json:"debug"`
	LogLevel           string         `json:"logLevel"`
	ObfuscateUrls      bool           `json:"obfuscateUrls"`
	AdaptiveEnabled    *bool          `json:"adaptiveEnabled"`
	PlaceholderLogo    string         `json:"placeholderLogo"`
	DefaultView        string         `json:"defaultView"`
	Sources            []SourceConfig `json:"sources"`
}

var (
	configCache *Config
	configMutex sync.RWMutex
)

// LoadConfig loads the configuration from file or returns the cached instance.
// A missing or invalid file falls back to the defaults; values are always
// validated before the config is cached.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := os.Getenv("KPTV_BROWSER_CONFIG")
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		logger.Warn("{config - LoadConfig} failed to load config from %s: %v", configPath, err)
		logger.Warn("{config - LoadConfig} falling back to default configuration")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	logger.Debug("{config - LoadConfig} %d sources configured, page size %d, dedupe %v",
		len(config.Sources), config.PageSize, config.Dedupe)

	return config
}

// LoadFromFile reads, parses and validates the configuration at path.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	config, err := convertFromFile(&configFile)
	if err != nil {
		return nil, err
	}
	validateAndSetDefaults(config)
	return config, nil
}

// convertFromFile converts a ConfigFile to Config, parsing duration strings.
// Empty duration strings are left at zero and filled in by validation.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		ListenAddr:      cf.ListenAddr,
		PageSize:        cf.PageSize,
		Dedupe:          true,
		Locale:          cf.Locale,
		DatabasePath:    cf.DatabasePath,
		CacheEnabled:    cf.CacheEnabled,
		WorkerThreads:   cf.WorkerThreads,
		Debug:           cf.Debug,
		LogLevel:        cf.LogLevel,
		ObfuscateUrls:   cf.ObfuscateUrls,
		AdaptiveEnabled: true,
		PlaceholderLogo: cf.PlaceholderLogo,
		DefaultView:     cf.DefaultView,
		Sources:         append([]SourceConfig(nil), cf.Sources...),
	}
	if cf.Dedupe != nil {
		config.Dedupe = *cf.Dedupe
	}
	if cf.AdaptiveEnabled != nil {
		config.AdaptiveEnabled = *cf.AdaptiveEnabled
	}

	var err error
	if cf.LongPressThreshold != "" {
		if config.LongPressThreshold, err = time.ParseDuration(cf.LongPressThreshold); err != nil {
			return nil, fmt.Errorf("invalid longPressThreshold: %w", err)
		}
	}
	if cf.CacheDuration != "" {
		if config.CacheDuration, err = time.ParseDuration(cf.CacheDuration); err != nil {
			return nil, fmt.Errorf("invalid cacheDuration: %w", err)
		}
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration used when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":8080",
		PageSize:           20,
		LongPressThreshold: 1500 * time.Millisecond,
		Dedupe:             true,
		Locale:             "en",
		DatabasePath:       "/settings/browser.db",
		CacheEnabled:       true,
		CacheDuration:      30 * time.Minute,
		WorkerThreads:      8,
		LogLevel:           "INFO",
		AdaptiveEnabled:    true,
		PlaceholderLogo:    "https://via.placeholder.com/50",
		DefaultView:        "list",
		Sources: []SourceConfig{
			{Name: "index", URL: "http://localhost:8080/index.m3u"},
			{Name: "videos", URL: "http://localhost:8080/videos.m3u"},
		},
	}
}

// validateAndSetDefaults fills in defaults for missing or invalid values.
func validateAndSetDefaults(config *Config) {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.PageSize <= 0 {
		config.PageSize = 20
	}
	if config.LongPressThreshold <= 0 {
		config.LongPressThreshold = 1500 * time.Millisecond
	}
	if config.Locale == "" {
		config.Locale = "en"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "/settings/browser.db"
	}
	if config.CacheDuration <= 0 {
		config.CacheDuration = 30 * time.Minute
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}
	if config.Debug {
		config.LogLevel = "DEBUG"
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.PlaceholderLogo == "" {
		config.PlaceholderLogo = "https://via.placeholder.com/50"
	}
	if config.DefaultView != "grid" {
		config.DefaultView = "list"
	}

	for i := range config.Sources {
		src := &config.Sources[i]
		if src.Name == "" {
			src.Name = fmt.Sprintf("Source_%d", i+1)
		}
		if src.Order <= 0 {
			src.Order = i + 1
		}
		if src.RequestsPerSecond <= 0 {
			src.RequestsPerSecond = 5
		}
		if src.UserAgent == "" {
			src.UserAgent = "VLC/3.0.18 LibVLC/3.0.18"
		}
		// ReqOrigin and ReqReferrer may remain empty
	}
}

// GetSourcesByOrder returns a copy of the sources sorted by Order. Sources with
// the same Order keep their file order.
func (c *Config) GetSourcesByOrder() []SourceConfig {
	sources := make([]SourceConfig, len(c.Sources))
	copy(sources, c.Sources)
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Order < sources[j].Order
	})
	return sources
}

// ClearConfigCache forces a reload on the next LoadConfig call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}
