package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/safar-labs/travelmate/internal/types"
)

// cleanJSONResponse strips markdown fences and any prose around the JSON
// object a model wrapped its answer in.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 && end > start {
		response = response[start : end+1]
	}
	return response
}

// parseQueryResponse decodes a model reply into the structured response
// shape, rejecting unknown fields and replies without a message.
func parseQueryResponse(raw string) (*types.QueryResponse, error) {
	cleaned := cleanJSONResponse(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()

	var resp types.QueryResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, types.NewResponseGenerationError("model reply is not valid response JSON", err)
	}
	if strings.TrimSpace(resp.Message) == "" {
		return nil, types.NewResponseGenerationError("model reply has an empty message", nil)
	}
	switch resp.FilterAction {
	case types.FilterActionUpdate, types.FilterActionClear, types.FilterActionKeep:
	case "":
		resp.FilterAction = types.FilterActionKeep
	default:
		return nil, types.NewResponseGenerationError("model reply has an unknown filter_action", nil)
	}
	if resp.Places == nil {
		resp.Places = []types.PlaceResponse{}
	}
	return &resp, nil
}
