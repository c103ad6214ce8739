package requesty

import "unicode/utf8"

// TokenCounter estimates token count for a string.
// Callers can plug in an exact tokenizer (e.g. a cl100k_base implementation); default is CharFallbackCounter.
type TokenCounter interface {
	Count(text string) (int, error)
}

// CharFallbackCounter estimates tokens as runes/CharsPerToken.
// Zero value uses 4 chars per token (English average).
type CharFallbackCounter struct {
	CharsPerToken int
}

// Count returns estimated token count: ceil(rune_count / CharsPerToken).
// If CharsPerToken <= 0, uses 4.
func (c *CharFallbackCounter) Count(text string) (int, error) {
	cpt := c.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + cpt - 1) / cpt, nil
}

// CountMessages sums the estimated tokens of all text parts and tool-call arguments in msgs.
// A nil counter uses CharFallbackCounter.
func CountMessages(tc TokenCounter, msgs []ChatMessage) (int, error) {
	if tc == nil {
		tc = &CharFallbackCounter{}
	}
	total := 0
	for _, m := range msgs {
		for _, p := range m.Content {
			t, ok := p.(TextPart)
			if !ok {
				continue
			}
			n, err := tc.Count(t.Text)
			if err != nil {
				return 0, err
			}
			total += n
		}
		for _, call := range m.ToolCalls {
			args, err := call.ArgumentsJSON()
			if err != nil {
				return 0, err
			}
			n, err := tc.Count(call.Name + args)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}
