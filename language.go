package industrymatch

import "unicode"

// Language identifies which rendering of the taxonomy and prompt an
// item gets. Classification accuracy improves when the prompt speaks
// the article's language.
type Language string

const (
	LangZH Language = "zh"
	LangEN Language = "en"
)

// detectSampleLen bounds how much text the heuristic looks at.
const detectSampleLen = 500

// DetectLanguage classifies text by the ratio of Latin letters to CJK
// ideographs within the first 500 runes. Latin wins only when it
// clearly dominates (more than twice the CJK count); mixed text
// defaults to Chinese, matching the taxonomy's canonical labels.
func DetectLanguage(text string) Language {
	var latin, cjk, n int
	for _, r := range text {
		n++
		if n > detectSampleLen {
			break
		}
		switch {
		case isCJK(r):
			cjk++
		case r < 256 && unicode.IsLetter(r):
			latin++
		}
	}
	if latin > 2*cjk {
		return LangEN
	}
	return LangZH
}
