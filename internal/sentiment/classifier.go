// Package sentiment labels how a response talks about the brand.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/providers/common"
)

// Classification methods.
const (
	MethodLLM      = "llm"
	MethodKeywords = "keywords"
	MethodNone     = "none"
)

const (
	maxPromptContext = 1000
	contextSeparator = " ... "
	schemaName       = "brand_sentiment"
)

// Result is the classification of one set of mention contexts.
type Result struct {
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
	Method    string  `json:"method"`
}

// Neutral is returned when nothing can be said.
func Neutral() Result {
	return Result{Sentiment: models.SentimentNeutral, Score: 0.5, Method: MethodNone}
}

// llmReply is the structured reply requested from the model.
type llmReply struct {
	Sentiment string  `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Score     float64 `json:"score" jsonschema:"minimum=0,maximum=1"`
}

var replySchema = generateSchema[llmReply]()

func generateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var zero T
	schema := reflector.Reflect(zero)
	result := map[string]interface{}{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}
	if schema.AdditionalProperties != nil {
		result["additionalProperties"] = false
	}
	return result
}

// Classifier delegates to an LLM and degrades to a keyword heuristic. A nil
// adapter always uses the heuristic.
type Classifier struct {
	adapter common.StructuredAdapter
}

func NewClassifier(adapter common.StructuredAdapter) *Classifier {
	return &Classifier{adapter: adapter}
}

// Classify never fails; every error path ends in the keyword heuristic.
func (c *Classifier) Classify(ctx context.Context, contexts []string, brandName string) Result {
	if len(contexts) == 0 {
		return Neutral()
	}
	text := clip(strings.Join(contexts, contextSeparator), maxPromptContext)
	if strings.TrimSpace(text) == "" {
		return Neutral()
	}

	if c != nil && c.adapter != nil {
		res, err := c.classifyLLM(ctx, text, brandName)
		if err == nil {
			return res
		}
		log.Debug().
			Err(err).
			Str("brand", brandName).
			Msg("[Classifier.Classify] falling back to keywords")
	}
	return ClassifyKeywords(text)
}

func (c *Classifier) classifyLLM(ctx context.Context, text, brandName string) (Result, error) {
	reply := c.adapter.ExecuteStructured(ctx, buildPrompt(text, brandName), schemaName, replySchema)
	if !reply.Success {
		return Result{}, fmt.Errorf("sentiment call failed: %s", reply.Error)
	}
	raw, ok := common.ExtractJSONObject(reply.Content)
	if !ok {
		return Result{}, fmt.Errorf("no JSON object in sentiment reply")
	}
	var parsed llmReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Result{}, fmt.Errorf("failed to parse sentiment reply: %w", err)
	}
	label := strings.ToLower(strings.TrimSpace(parsed.Sentiment))
	switch label {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		return Result{}, fmt.Errorf("unknown sentiment label %q", parsed.Sentiment)
	}
	return Result{Sentiment: label, Score: clamp(parsed.Score, 0, 1), Method: MethodLLM}, nil
}

func buildPrompt(text, brandName string) string {
	return fmt.Sprintf(`Classify the sentiment expressed towards the brand "%s" in the excerpts below.
The excerpts may be in English or Spanish.

Excerpts:
%s

Respond with ONLY a JSON object of the form {"sentiment": "positive|neutral|negative", "score": 0.xx}
where score is 0 for very negative, 0.5 for neutral and 1 for very positive.`, brandName, text)
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
