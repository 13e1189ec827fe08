package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"flash-study/internal/models"
)

var (
	questionPrefix = regexp.MustCompile(`(?i)^question\s*\d*:?\s*`)
	answerPrefix   = regexp.MustCompile(`(?i)^answer:?\s*`)
	labelOnly      = regexp.MustCompile(`^([A-Da-d])[.)]?$`)
)

// extractJSONArray returns the span from the first '[' to the last ']' in text.
func extractJSONArray(text string) (string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end <= start {
		return "", ErrNoJSONArray
	}
	return text[start : end+1], nil
}

type cardObject struct {
	Question string          `json:"question"`
	Options  json.RawMessage `json:"options"`
	Answer   string          `json:"answer"`
}

// parseCardArray decodes a JSON array of card objects. Elements that are not
// objects, or whose options are not a list of strings, are skipped; if none
// survive the whole payload is rejected.
func parseCardArray(text string) ([]models.Flashcard, error) {
	raw, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSONArray, err)
	}

	var cards []models.Flashcard
	for _, elem := range elems {
		card, ok := decodeCardElement(elem)
		if !ok {
			continue
		}
		if card, ok = normalizeCard(card); ok {
			cards = append(cards, card)
		}
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: %d array elements, none usable", ErrUnrecognizedShape, len(elems))
	}
	return cards, nil
}

func decodeCardElement(elem json.RawMessage) (models.Flashcard, bool) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Flashcard{}, false
	}
	var obj cardObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return models.Flashcard{}, false
	}
	card := models.Flashcard{Question: obj.Question, Answer: obj.Answer}

	opts := bytes.TrimSpace(obj.Options)
	switch {
	case len(opts) == 0 || bytes.Equal(opts, []byte("null")):
	case opts[0] == '[':
		if err := json.Unmarshal(opts, &card.Options); err != nil {
			return models.Flashcard{}, false
		}
	default:
		return models.Flashcard{}, false
	}
	return card, true
}

// normalizeCard enforces the option/answer invariant. Unlabelled options get
// A-D labels, a bare label answer ("B") is resolved to its option text, and a
// card whose answer cannot be matched to exactly one option loses its options.
func normalizeCard(card models.Flashcard) (models.Flashcard, bool) {
	card.Question = strings.TrimSpace(card.Question)
	card.Answer = strings.TrimSpace(card.Answer)
	if card.Question == "" || card.Answer == "" {
		return models.Flashcard{}, false
	}
	if len(card.Options) == 0 {
		card.Options = nil
		return card, true
	}

	stripped := make([]string, 0, len(card.Options))
	for _, opt := range card.Options {
		if s := models.StripOptionLabel(opt); s != "" {
			stripped = append(stripped, s)
		}
	}
	if len(stripped) == 0 {
		card.Options = nil
		return card, true
	}
	card.Options = labelOptions(stripped)

	if m := labelOnly.FindStringSubmatch(card.Answer); m != nil {
		idx := int(strings.ToUpper(m[1])[0] - 'A')
		if idx < len(stripped) {
			card.Answer = stripped[idx]
		}
	} else {
		card.Answer = models.StripOptionLabel(card.Answer)
	}

	if !card.AnswerInOptions() {
		card.Options = nil
	}
	return card, true
}

// normalizeCards filters a provider result down to cards that honour the
// option/answer invariant.
func normalizeCards(cards []models.Flashcard) []models.Flashcard {
	var out []models.Flashcard
	for _, card := range cards {
		if card, ok := normalizeCard(card); ok {
			out = append(out, card)
		}
	}
	return out
}

// extractLinePairs scans free text for a question-like line (contains '?',
// longer than 10 characters) directly followed by an answer-like line (no '?',
// longer than 5 characters), collecting at most limit pairs.
func extractLinePairs(text string, limit int) []models.Flashcard {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var cards []models.Flashcard
	for i := 0; i < len(lines) && len(cards) < limit; i++ {
		line := lines[i]
		if !strings.Contains(line, "?") || utf8.RuneCountInString(line) <= 10 {
			continue
		}
		if i+1 >= len(lines) {
			break
		}
		next := lines[i+1]
		if strings.Contains(next, "?") || utf8.RuneCountInString(next) <= 5 {
			continue
		}
		question := strings.TrimSpace(questionPrefix.ReplaceAllString(line, ""))
		answer := strings.TrimSpace(answerPrefix.ReplaceAllString(next, ""))
		if question != "" && answer != "" {
			cards = append(cards, models.Flashcard{Question: question, Answer: answer})
			i++
		}
	}
	return cards
}

// decodeGeneratedText reads the text out of a hosted-inference response,
// which arrives as [{"generated_text": ...}], {"generated_text": ...} or a
// bare JSON string.
func decodeGeneratedText(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrUnrecognizedShape)
	}

	type generated struct {
		GeneratedText *string `json:"generated_text"`
	}

	switch trimmed[0] {
	case '[':
		var items []generated
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if len(items) > 0 && items[0].GeneratedText != nil {
			return *items[0].GeneratedText, nil
		}
	case '{':
		var item generated
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if item.GeneratedText != nil {
			return *item.GeneratedText, nil
		}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		return s, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnrecognizedShape, maxBodyPreview(trimmed))
}
