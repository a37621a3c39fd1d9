package retrieval

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/ragflow/services/ragcore/datatypes"
)

// knowledgeStoreHit is one object returned by the configured class's Get
// query, minimally shaped: a text field plus Weaviate's _additional block.
type knowledgeStoreHit struct {
	Content    string `json:"content"`
	Additional struct {
		ID        string   `json:"id"`
		Certainty *float64 `json:"certainty"`
		Score     string   `json:"score"`
	} `json:"_additional"`
}

// parseGraphQLInto unmarshals resp.Data into a typed target, mirroring the
// generic ParseGraphQLResponse[T] helper used throughout the teacher's
// Weaviate call sites.
func parseGraphQLInto(resp *models.GraphQLResponse, target any) error {
	if resp == nil {
		return fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return nil
}

func parseKnowledgeStoreResponse(resp *models.GraphQLResponse, className string, mode datatypes.RetrievalMode) ([]datatypes.ContextItem, error) {
	var parsed struct {
		Get map[string][]knowledgeStoreHit `json:"Get"`
	}
	if err := parseGraphQLInto(resp, &parsed); err != nil {
		return nil, err
	}

	hits := parsed.Get[className]
	items := make([]datatypes.ContextItem, 0, len(hits))
	for _, hit := range hits {
		score := 0.0
		if hit.Additional.Certainty != nil {
			score = *hit.Additional.Certainty
		}
		items = append(items, datatypes.ContextItem{
			Text:     hit.Content,
			SourceID: hit.Additional.ID,
			Score:    score,
			Mode:     mode,
		})
	}
	return items, nil
}
