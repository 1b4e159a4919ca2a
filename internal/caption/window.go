package caption

import "strings"

const DefaultWindowSize = 20

// Window returns the last n whitespace-separated words of text joined by
// single spaces.
func Window(text string, n int) string {
	if n <= 0 {
		n = DefaultWindowSize
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
