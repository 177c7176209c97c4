package textscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		tags     []string
		mentions []string
	}{
		{"basic", "hello @bob #travel", []string{"travel"}, []string{"bob"}},
		{"trailing punctuation", "great trip @bob, #Travel! #sun.", []string{"travel", "sun"}, []string{"bob"}},
		{"dedupe", "#a #A @x @x", []string{"a"}, []string{"x"}},
		{"bare markers", "# @ #! @?", nil, nil},
		{"mid word markers ignored", "mail me at bob@example.com or c#", nil, nil},
		{"newlines and tabs", "line1\n#go\t@amy_1", []string{"go"}, []string{"amy_1"}},
		{"unicode letters", "#café @zoë", []string{"café"}, []string{"zoë"}},
		{"dotted username", "cc @jane.doe.", nil, []string{"jane.doe"}},
		{"case kept for mentions", "@Bob", nil, []string{"Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scan(tt.text)
			assert.Equal(t, tt.tags, got.Hashtags)
			assert.Equal(t, tt.mentions, got.Mentions)
		})
	}
}
