package chat

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// Context window accounting. The window matches the 128K models in the
// fallback chain; responses need headroom, and truncation aims well under
// the limit so tool results still fit.
const (
	contextWindow    = 128000
	responseReserve  = 2000
	truncateTarget   = 80000
	messageOverhead  = 4 // per-message framing tokens
	summaryKeepCount = 5
	summarySnippet   = 100
)

// estimateTokens provides a rough token count.
// Rune count divided by 2 is conservative for both English (~4 chars per
// token) and dense numeric content.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

// messageTokens estimates one message including framing overhead.
func messageTokens(m Message) int {
	return estimateTokens(m.Content) + messageOverhead
}

// historyTokens estimates the total cost of a conversation.
func historyTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += messageTokens(m)
	}
	return total
}

// WindowCheck reports whether a prepared request fits the model context.
type WindowCheck struct {
	SystemTokens  int  `json:"system_tokens"`
	HistoryTokens int  `json:"history_tokens"`
	TotalTokens   int  `json:"total_tokens"`
	Remaining     int  `json:"remaining"`
	Fits          bool `json:"fits_in_window"`
}

// checkContextWindow estimates the full request size against the window.
func checkContextWindow(systemPrompt string, msgs []Message) WindowCheck {
	sys := estimateTokens(systemPrompt)
	hist := historyTokens(msgs)
	total := sys + hist
	remaining := contextWindow - total
	return WindowCheck{
		SystemTokens:  sys,
		HistoryTokens: hist,
		TotalTokens:   total,
		Remaining:     remaining,
		Fits:          remaining > responseReserve,
	}
}

// truncateHistory drops the oldest messages until the history fits the
// budget. The latest message always survives, even over budget; dropping
// the user's current question would make the request meaningless.
func truncateHistory(msgs []Message, budget int) []Message {
	if len(msgs) == 0 || historyTokens(msgs) <= budget {
		return msgs
	}

	last := msgs[len(msgs)-1]
	kept := []Message{last}
	remaining := budget - messageTokens(last)

	for i := len(msgs) - 2; i >= 0; i-- {
		cost := messageTokens(msgs[i])
		if cost > remaining {
			break
		}
		kept = append(kept, msgs[i])
		remaining -= cost
	}

	slices.Reverse(kept)
	return kept
}

// summarizeOldMessages collapses everything but the most recent turns into
// a single system summary so long conversations keep their gist.
func summarizeOldMessages(msgs []Message) []Message {
	if len(msgs) <= summaryKeepCount {
		return msgs
	}

	old := msgs[:len(msgs)-summaryKeepCount]
	recent := msgs[len(msgs)-summaryKeepCount:]

	var b strings.Builder
	b.WriteString("Earlier conversation summary:\n")
	for _, m := range old {
		content := m.Content
		if runes := []rune(content); len(runes) > summarySnippet {
			content = string(runes[:summarySnippet]) + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, content)
	}

	out := make([]Message, 0, len(recent)+1)
	out = append(out, Message{Role: "system", Content: b.String()})
	return append(out, recent...)
}
