package generation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"flash-study/internal/models"
)

const (
	// Blank replaces the key term in a fill-in-the-blank question.
	Blank = "______"

	maxHeuristicCards = 5
	fillerOption      = "general knowledge"
)

// Heuristic synthesizes multiple-choice flashcards straight from text. It is
// deterministic and always returns at least one card.
func Heuristic(text string) []models.Flashcard {
	var cards []models.Flashcard

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		cards = wordCards(text)
	} else {
		for _, sentence := range sentences {
			if len(cards) == maxHeuristicCards {
				break
			}
			if card, ok := blankCard(sentence); ok {
				cards = append(cards, card)
			}
		}
	}

	if len(cards) == 0 {
		cards = append(cards, models.Flashcard{
			Question: "What is the main topic of this text?",
			Options:  []string{"A. General knowledge", "B. Study material", "C. Educational content", "D. Learning resource"},
			Answer:   "Educational content",
		})
	}
	return cards
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) > 10 {
			out = append(out, part)
		}
	}
	return out
}

func wordCards(text string) []models.Flashcard {
	var cards []models.Flashcard
	for _, token := range strings.Fields(text) {
		if len(cards) == maxHeuristicCards {
			break
		}
		word := trimPunct(token)
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		answer := fmt.Sprintf("The word \"%s\" appears in the text and is part of the content.", word)
		cards = append(cards, models.Flashcard{
			Question: fmt.Sprintf("What is the meaning of \"%s\" in the context of this text?", word),
			Options: []string{
				"A. " + answer,
				"B. This word is not in the text",
				"C. This is a different word",
				"D. Cannot determine from text",
			},
			Answer: answer,
		})
	}
	return cards
}

// blankCard turns a sentence into a fill-in-the-blank card keyed on its middle
// significant word (longer than two characters).
func blankCard(sentence string) (models.Flashcard, bool) {
	if utf8.RuneCountInString(sentence) < 15 {
		return models.Flashcard{}, false
	}

	tokens := strings.Fields(sentence)
	var significant []int
	for i, token := range tokens {
		if utf8.RuneCountInString(trimPunct(token)) > 2 {
			significant = append(significant, i)
		}
	}
	if len(significant) < 4 {
		return models.Flashcard{}, false
	}

	keyPos := len(significant) / 2
	keyIdx := significant[keyPos]
	keyTerm := trimPunct(tokens[keyIdx])

	blanked := append([]string(nil), tokens...)
	blanked[keyIdx] = strings.Replace(tokens[keyIdx], keyTerm, Blank, 1)

	options := []string{keyTerm}
	seen := map[string]bool{keyTerm: true}
	for pos := 1; pos <= 3; pos++ {
		if pos == keyPos {
			continue
		}
		word := trimPunct(tokens[significant[pos]])
		if seen[word] {
			continue
		}
		seen[word] = true
		options = append(options, word)
	}
	for len(options) < 4 {
		options = append(options, fillerOption)
	}

	return models.Flashcard{
		Question: strings.Join(blanked, " ") + "?",
		Options:  labelOptions(options[:4]),
		Answer:   keyTerm,
	}, true
}

func labelOptions(options []string) []string {
	out := make([]string, len(options))
	for i, opt := range options {
		out[i] = fmt.Sprintf("%c. %s", 'A'+i, opt)
	}
	return out
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, unicode.IsPunct)
}
