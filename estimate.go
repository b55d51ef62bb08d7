package industrymatch

// EstimateTokens approximates the token cost of text for admission
// decisions: CJK ideographs at ~1.5 characters per token, everything
// else at ~4, with a 20% buffer. A heuristic, never an exact count;
// it must only ever feed rate-limit decisions, not billing.
func EstimateTokens(text string) int64 {
	var cjk, other float64
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return int64((cjk/1.5 + other/4) * 1.2)
}

// isCJK reports whether r falls in the CJK Unified Ideographs block.
func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
