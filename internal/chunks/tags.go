package chunks

import "strings"

const minTagLength = 3

// ExtractTags derives the hashtag list from chunk content: the content is
// split on whitespace, and a token qualifies when it starts with '#' and the
// remainder is at least three characters long. Extraction order is preserved
// and repeated hashtags are kept.
func ExtractTags(content string) []string {
	var tags []string
	for _, token := range strings.Fields(content) {
		if !strings.HasPrefix(token, "#") {
			continue
		}
		text := token[1:]
		if len(text) >= minTagLength {
			tags = append(tags, text)
		}
	}
	return tags
}
