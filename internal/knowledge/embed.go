package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
	"google.golang.org/genai"
)

// QueryPrefix marks texts embedded as search queries rather than documents.
const QueryPrefix = "QUERY_TASK:"

const DefaultDimension = 768

// GeminiEmbedder embeds with the Gemini embedding API.
func GeminiEmbedder(client *genai.Client, model string, dim int) chromem.EmbeddingFunc {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		taskType := "RETRIEVAL_DOCUMENT"
		if strings.HasPrefix(text, QueryPrefix) {
			taskType = "RETRIEVAL_QUERY"
			text = strings.TrimPrefix(text, QueryPrefix)
		}
		contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
		size := int32(dim)
		res, err := client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
			TaskType:             taskType,
			OutputDimensionality: &size,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		if len(res.Embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		normalize(res.Embeddings[0].Values)
		return res.Embeddings[0].Values, nil
	}
}

// HashEmbedder is an offline embedder using signed feature hashing of
// lower-cased word tokens. Dimension 0 carries a constant bias so no text,
// not even an empty one, maps to the zero vector.
func HashEmbedder(dim int) chromem.EmbeddingFunc {
	if dim < 2 {
		dim = 256
	}
	return func(_ context.Context, text string) ([]float32, error) {
		text = strings.TrimPrefix(text, QueryPrefix)
		v := make([]float32, dim)
		v[0] = 0.1
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			sum := h.Sum32()
			idx := 1 + int(sum%uint32(dim-1))
			if sum&(1<<31) != 0 {
				v[idx] -= 1
			} else {
				v[idx] += 1
			}
		}
		normalize(v)
		return v, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	magnitude := float32(math.Sqrt(sum))
	if magnitude <= 0 {
		return
	}
	for i := range v {
		v[i] /= magnitude
	}
}
