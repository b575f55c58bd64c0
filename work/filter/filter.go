package filter

import (
	"strings"
	"sync"

	"github.com/grafana/regexp"

	"kptv-browser/work/config"
	"kptv-browser/work/logger"
	"kptv-browser/work/types"
)

// CompiledFilter holds the compiled name patterns of one source. A nil pattern
// means "no rule".
type CompiledFilter struct {
	Include *regexp.Regexp
	Exclude *regexp.Regexp
}

// FilterManager caches compiled filters per source URL.
type FilterManager struct {
	filters map[string]*CompiledFilter
	mu      sync.RWMutex
}

// NewFilterManager creates a new filter manager
func NewFilterManager() *FilterManager {
	return &FilterManager{
		filters: make(map[string]*CompiledFilter),
	}
}

// GetOrCreateFilter returns the compiled filter for source, compiling it on first
// use. Invalid patterns are logged and treated as absent.
func (fm *FilterManager) GetOrCreateFilter(source *config.SourceConfig) *CompiledFilter {
	fm.mu.RLock()
	filter, exists := fm.filters[source.URL]
	fm.mu.RUnlock()
	if exists {
		return filter
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	if filter, exists := fm.filters[source.URL]; exists {
		return filter
	}

	filter = &CompiledFilter{
		Include: compile(source.Name, "includeRegex", source.IncludeRegex),
		Exclude: compile(source.Name, "excludeRegex", source.ExcludeRegex),
	}
	fm.filters[source.URL] = filter
	return filter
}

func compile(sourceName, field, pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		logger.Error("{filter - compile} source %s: invalid %s '%s': %v", sourceName, field, pattern, err)
		return nil
	}
	logger.Debug("{filter - compile} source %s: compiled %s '%s'", sourceName, field, pattern)
	return compiled
}

// ClearFilters drops every compiled filter, e.g. after a config reload.
func (fm *FilterManager) ClearFilters() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.filters = make(map[string]*CompiledFilter)
}

// Allows reports whether a channel name passes the filter: it must match the
// include pattern when one exists and must not match the exclude pattern.
func (f *CompiledFilter) Allows(name string) bool {
	name = strings.TrimSpace(name)
	if f.Include != nil && !f.Include.MatchString(name) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(name) {
		return false
	}
	return true
}

// FilterChannels applies the source's rules to channels parsed from it. The input
// slice is never modified.
func FilterChannels(channels []types.Channel, source *config.SourceConfig, fm *FilterManager) []types.Channel {
	if source.IncludeRegex == "" && source.ExcludeRegex == "" {
		return channels
	}

	filter := fm.GetOrCreateFilter(source)
	filtered := make([]types.Channel, 0, len(channels))
	for _, ch := range channels {
		if filter.Allows(ch.Name) {
			filtered = append(filtered, ch)
		}
	}

	logger.Debug("{filter - FilterChannels} filtered %d -> %d channels for source %s", len(channels), len(filtered), source.Name)
	return filtered
}
