package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/safar-labs/travelmate/internal/types"
)

// noPlacesMarker is placed in the prompt context when retrieval came back
// empty, so the model states that instead of inventing places.
const noPlacesMarker = "No places found"

// buildPlacesContext serializes retrieved places one JSON record per line.
func buildPlacesContext(places []types.PlaceResponse) string {
	if len(places) == 0 {
		return noPlacesMarker
	}
	var b strings.Builder
	for i, place := range places {
		data, err := json.Marshal(place)
		if err != nil {
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.Write(data)
	}
	return b.String()
}

func buildHistoryTranscript(history []types.ConversationTurn) string {
	if len(history) == 0 {
		return "(no prior conversation)"
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Content)
	}
	return b.String()
}

func buildAnswerPrompt(query, placesContext string, filters types.FilterSet, history []types.ConversationTurn, maxPlaces int) string {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		filtersJSON = []byte("{}")
	}

	return fmt.Sprintf(`You are a helpful assistant recommending places to visit. Answer the user's
question using ONLY the place records in the context below. Each line of the
context is one place as a JSON object.

Rules:
- Recommend at most %d places, ranked by rating then by review count.
- Never invent a place. Only places present in the context may appear in
  your answer.
- If the context is exactly "%s", say that no matching places were
  found and suggest loosening the filters. Return an empty places list.
- Mention the active filters naturally in your message when they narrowed
  the results.

Active filters: %s

Conversation so far:
%s

Context:
%s

User question: %s

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "message": "<conversational answer>",
  "places": [
    {"place_id": "...", "name": "...", "address": "...", "lat": 0, "lng": 0,
     "city": "...", "main_category": "...", "types": null, "rating": null,
     "review_count": null}
  ],
  "applied_filters": %s,
  "filter_action": "keep"
}
Copy place fields verbatim from the context records.`,
		maxPlaces, noPlacesMarker, filtersJSON,
		buildHistoryTranscript(history), placesContext, query, filtersJSON)
}
