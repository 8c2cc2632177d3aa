package interview

import (
	"encoding/json"

	"github.com/boganlabs/bogan/internal/conversation"
	"github.com/boganlabs/bogan/internal/llm"
)

// buildHistory converts persisted turns into the canonical message
// sequence for a generation call.
//
// The opening greeting is an assistant turn, and history supplied to a
// model call must not begin with one, so a leading assistant turn is
// elided from the call (never from storage). The elision is idempotent
// and preserves order.
//
// For non-English sessions the canonical content column already holds
// English, so no per-message translation happens here. Turns carrying
// tool blocks are rendered as JSON so the model sees what it invoked
// and what came back.
func buildHistory(turns []*conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for i, turn := range turns {
		if i == 0 && turn.Role == conversation.RoleAssistant {
			continue
		}
		msgs = append(msgs, llm.Message{
			Role: turn.Role,
			Text: renderTurn(turn),
		})
	}
	return msgs
}

// renderTurn flattens a turn's blocks into model-visible text.
func renderTurn(turn *conversation.Turn) string {
	if plain := plainText(turn); plain != "" {
		return plain
	}

	// Tool blocks: render the full block array so invocation and result
	// stay paired in the model's view.
	data, err := json.Marshal(turn.Blocks)
	if err != nil {
		return turn.Text()
	}
	return string(data)
}

// plainText returns the turn's text if it contains only text blocks.
func plainText(turn *conversation.Turn) string {
	for _, b := range turn.Blocks {
		if b.Type != conversation.BlockText {
			return ""
		}
	}
	return turn.Text()
}
