package sentiment

import (
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

// Word lists are matched accent-insensitively on word boundaries.
var positiveWords = []string{
	"best", "great", "excellent", "recommended", "recommend", "leading", "popular",
	"reliable", "easy", "intuitive", "powerful", "affordable", "top", "favorite", "love",
	"mejor", "excelente", "recomendado", "recomendable", "recomiendo", "lider",
	"fiable", "facil", "intuitivo", "potente", "economico", "destacado", "ideal",
}

var negativeWords = []string{
	"worst", "bad", "poor", "expensive", "difficult", "complicated", "slow", "limited",
	"buggy", "unreliable", "avoid", "lacks", "complaints", "outdated",
	"peor", "malo", "mala", "caro", "dificil", "complicado", "lento", "limitado",
	"errores", "evitar", "carece", "quejas", "anticuado",
}

const (
	keywordStep = 0.05
	minScore    = 0.05
	maxScore    = 0.95
)

// ClassifyKeywords scores text by counting fixed positive and negative words.
func ClassifyKeywords(text string) Result {
	pos := countWords(positiveWords, text)
	neg := countWords(negativeWords, text)
	diff := pos - neg

	switch {
	case diff > 0:
		return Result{
			Sentiment: models.SentimentPositive,
			Score:     clamp(0.5+keywordStep*float64(diff), minScore, maxScore),
			Method:    MethodKeywords,
		}
	case diff < 0:
		return Result{
			Sentiment: models.SentimentNegative,
			Score:     clamp(0.5-keywordStep*float64(-diff), minScore, maxScore),
			Method:    MethodKeywords,
		}
	}
	return Result{Sentiment: models.SentimentNeutral, Score: 0.5, Method: MethodKeywords}
}

func countWords(words []string, text string) int {
	seen := make(map[string]bool, len(words))
	n := 0
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		n += len(textnorm.WordBoundaryMatch(w, text))
	}
	return n
}
