package buffer

import (
	"github.com/tmc/langchaingo/llms"
)

// Conversation is the append-only message history of one probe session.
type Conversation struct {
	items []llms.MessageContent
}

func (c *Conversation) Add(msgs ...llms.MessageContent) {
	c.items = append(c.items, msgs...)
}

// Messages returns a copy of the history safe to hand to a model client.
func (c *Conversation) Messages() []llms.MessageContent {
	out := make([]llms.MessageContent, len(c.items))
	copy(out, c.items)
	return out
}
