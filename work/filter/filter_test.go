package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kptv-browser/work/config"
	"kptv-browser/work/types"
)

func names(chs []types.Channel) []string {
	out := make([]string, 0, len(chs))
	for _, ch := range chs {
		out = append(out, ch.Name)
	}
	return out
}

func TestFilterChannels(t *testing.T) {
	in := []types.Channel{{Name: "BBC One"}, {Name: "BBC News"}, {Name: "CNN"}, {Name: "bbc radio"}}

	tests := []struct {
		name    string
		include string
		exclude string
		want    []string
	}{
		{"no rules", "", "", []string{"BBC One", "BBC News", "CNN", "bbc radio"}},
		{"include case-insensitive", "^bbc", "", []string{"BBC One", "BBC News", "bbc radio"}},
		{"exclude", "", "radio|news", []string{"BBC One", "CNN"}},
		{"include and exclude", "bbc", "radio", []string{"BBC One", "BBC News"}},
		{"invalid include ignored", "(", "cnn", []string{"BBC One", "BBC News", "bbc radio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &config.SourceConfig{Name: tt.name, URL: "http://src/" + tt.name, IncludeRegex: tt.include, ExcludeRegex: tt.exclude}
			got := FilterChannels(in, src, NewFilterManager())
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestGetOrCreateFilterCachesBySourceURL(t *testing.T) {
	fm := NewFilterManager()
	src := &config.SourceConfig{URL: "http://a", IncludeRegex: "x"}

	first := fm.GetOrCreateFilter(src)
	assert.Same(t, first, fm.GetOrCreateFilter(src))

	fm.ClearFilters()
	assert.NotSame(t, first, fm.GetOrCreateFilter(src))
}
