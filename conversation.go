package agent

import "github.com/Protocol-Lattice/go-dataviz-agent/src/models"

// Conversation is an append-only message log threaded through the loop as a
// value. Append never writes into storage visible to an earlier value.
type Conversation struct {
	messages []models.Message
}

// NewConversation starts a conversation with a system prompt and the user's question.
func NewConversation(systemPrompt, question string) Conversation {
	return Conversation{}.Append(
		models.Message{Role: models.RoleSystem, Content: systemPrompt},
		models.Message{Role: models.RoleUser, Content: question},
	)
}

// Append returns a new conversation with msgs added at the end.
func (c Conversation) Append(msgs ...models.Message) Conversation {
	next := make([]models.Message, len(c.messages), len(c.messages)+len(msgs))
	copy(next, c.messages)
	return Conversation{messages: append(next, msgs...)}
}

// Messages returns a copy of the log.
func (c Conversation) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c Conversation) Len() int { return len(c.messages) }

// Last returns the final message, or false when empty.
func (c Conversation) Last() (models.Message, bool) {
	if len(c.messages) == 0 {
		return models.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
