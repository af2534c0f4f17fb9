package llm

import (
	"context"
	"sort"

	"github.com/goccy/go-json"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order. Satisfies
// the resolver's Embedder interface.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := c.post(ctx, "/embeddings", embeddingRequest{
		Model: c.cfg.EmbeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "decoding embedding response")
	}
	if len(parsed.Data) != len(texts) {
		return nil, lferrors.New(lferrors.KindLLMError, "embedding count does not match input count")
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
