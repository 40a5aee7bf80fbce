package chunks

import (
	"reflect"
	"testing"
)

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			name:     "plain-text",
			content:  "no tags here",
			expected: nil,
		},
		{
			name:     "single-tag",
			content:  "hello #world",
			expected: []string{"world"},
		},
		{
			name:     "short-tag-excluded",
			content:  "hello #world #ab",
			expected: []string{"world"},
		},
		{
			name:     "boundary-length",
			content:  "#ab #abc",
			expected: []string{"abc"},
		},
		{
			name:     "order-preserved",
			content:  "#zebra then #apple",
			expected: []string{"zebra", "apple"},
		},
		{
			name:     "duplicates-kept",
			content:  "#echo #echo again #echo",
			expected: []string{"echo", "echo", "echo"},
		},
		{
			name:     "surrounding-whitespace",
			content:  "   #lead\t mid \n#tail   ",
			expected: []string{"lead", "tail"},
		},
		{
			name:     "bare-hash",
			content:  "# #x",
			expected: nil,
		},
		{
			name:     "hash-mid-word-ignored",
			content:  "not#atag",
			expected: nil,
		},
		{
			name:     "empty-content",
			content:  "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := ExtractTags(tt.content)
			if !reflect.DeepEqual(tags, tt.expected) {
				t.Fatalf("expected %#v, got %#v", tt.expected, tags)
			}
		})
	}
}
