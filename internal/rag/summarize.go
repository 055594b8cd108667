package rag

import (
	"sort"
	"strings"
)

// ExtractTopSentences shortens text to at most maxChars by selecting its
// highest-scoring sentences and emitting them in original order. Scoring is
// deterministic: earlier sentences score higher (position decay) with a
// term-frequency bonus for sentences made of words common in the text.
// When not even one sentence fits, the original text is returned unchanged;
// callers follow up with a hard truncation pass.
func ExtractTopSentences(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	sentences := splitSentences(text)
	scores := scoreSentences(sentences)

	// Rank by score descending, original position as the tie-break.
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})

	used := 0
	selected := make([]bool, len(sentences))
	for _, i := range order {
		cost := len(sentences[i])
		if used > 0 {
			cost++ // joining space
		}
		if used+cost > maxChars {
			continue
		}
		selected[i] = true
		used += cost
	}

	var parts []string
	for i, s := range sentences {
		if selected[i] {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, " ")
}

// scoreSentences assigns each sentence a position-decay score plus the mean
// corpus frequency of its words, so early and representative sentences win.
func scoreSentences(sentences []string) []float64 {
	freq := make(map[string]int)
	total := 0
	for _, s := range sentences {
		for _, w := range strings.Fields(strings.ToLower(s)) {
			freq[strings.Trim(w, ".,!?;:")]++
			total++
		}
	}

	scores := make([]float64, len(sentences))
	for i, s := range sentences {
		score := 1.0 / float64(1+i)

		words := strings.Fields(strings.ToLower(s))
		if len(words) > 0 && total > 0 {
			sum := 0
			for _, w := range words {
				sum += freq[strings.Trim(w, ".,!?;:")]
			}
			score += float64(sum) / float64(len(words)) / float64(total)
		}
		scores[i] = score
	}
	return scores
}

// TruncateAtWord hard-truncates text to at most maxChars bytes, dropping the
// final partial word and appending "...". Used when sentence extraction could
// not produce a short enough result.
func TruncateAtWord(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	if maxChars < 1 {
		return ""
	}

	cut := truncateBytes(text, maxChars)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// splitSentences breaks text into trimmed sentences on terminal punctuation.
// Trailing text without a terminator counts as a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// truncateBytes cuts text to at most maxChars bytes without splitting a
// multi-byte rune.
func truncateBytes(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
