// Package budget bounds the retrieved context handed to the insight generator.
// Backends use different tokenizers, so estimates rely on a conservative
// character heuristic: 1 token ≈ 4 characters of English prose.
package budget

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for the system prompt,
	// retrieved facts and question together. It fits 8k-context models while
	// leaving room for the answer.
	DefaultMaxContextTokens = 6000

	// perItemOverhead approximates the "Document i:" label and separators.
	perItemOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role and content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Per-message overhead is about 4 tokens in most chat APIs.
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitContext returns the longest prefix of items whose estimated size, plus
// reserved tokens already committed to the prompt, fits within maxTokens.
// Items are expected most relevant first, so the least relevant are dropped.
// The first item is always kept: when it alone overflows the budget it is cut
// to the remaining space, or to a single token's worth when none remains.
func FitContext(items []string, reserved, maxTokens int) []string {
	if len(items) == 0 {
		return items
	}
	remaining := maxTokens - reserved
	out := make([]string, 0, len(items))
	for i, it := range items {
		cost := Estimate(it) + perItemOverhead
		if cost <= remaining {
			out = append(out, it)
			remaining -= cost
			continue
		}
		if i == 0 {
			keep := (remaining - perItemOverhead) * charsPerToken
			if keep < charsPerToken {
				keep = charsPerToken
			}
			if keep < len(it) {
				it = strings.ToValidUTF8(it[:keep], "")
			}
			out = append(out, it)
		}
		break
	}
	return out
}
