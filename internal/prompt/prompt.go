// Package prompt renders the persona system prompts and the
// conversation history views sent to the AI backend.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mlundqvist/matechat-go/internal/models"
)

// Params carries everything a system prompt interpolates.
type Params struct {
	MessageType           models.MessageType
	TargetLanguage        string
	ChatMatePersonality   string
	EditorMatePersonality string
	FeedbackStyle         models.FeedbackStyle
	CulturalContext       bool
	ProgressiveComplexity bool
}

// Turn is one {role, content} pair of the wire-format history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System renders the system prompt for the given persona and step.
func System(p Params) string {
	switch p.MessageType {
	case models.TypeChatMateResponse:
		return chatMateSystem(p)
	default:
		return editorMateSystem(p)
	}
}

func chatMateSystem(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are Chat Mate, a native %[1]s speaker having a casual conversation.
Personality: %[2]s

Rules:
- Reply only in %[1]s, staying in character as a conversation partner.
- Never correct, grade or comment on the learner's language. That is not your role.
- Keep replies conversational in length: a few sentences, then something to respond to.`,
		p.TargetLanguage, p.ChatMatePersonality)

	if p.CulturalContext {
		b.WriteString("\n- Weave in cultural context (customs, idioms, daily life) where it fits naturally.")
	}
	if p.ProgressiveComplexity {
		b.WriteString("\n- Mirror the learner's level and stretch it slightly: introduce a little new vocabulary or structure each turn.")
	}
	return b.String()
}

func editorMateSystem(p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are Editor Mate, a %[1]s language teacher observing a conversation between a learner and a native speaker.
Personality: %[2]s
Feedback style: %[3]s

`, p.TargetLanguage, p.EditorMatePersonality, p.FeedbackStyle)

	switch p.MessageType {
	case models.TypeEditorMateUserComment:
		b.WriteString(`Comment on the learner's most recent message: grammar, word choice, naturalness. Point out what was done well before what to fix.`)
	case models.TypeEditorMateChatMateComment:
		b.WriteString(`Explain the native speaker's most recent reply to the learner: vocabulary worth noting, idioms, and anything culturally specific. Do not translate the whole reply word for word.`)
	default:
		b.WriteString(`Answer the learner's question about the language directly, with short examples.`)
	}

	switch p.FeedbackStyle {
	case models.FeedbackDirect:
		b.WriteString("\nBe brief and to the point. Skip praise unless something is genuinely notable.")
	case models.FeedbackDetailed:
		b.WriteString("\nExplain the underlying rule behind each point, with one extra example per correction.")
	default:
		b.WriteString("\nKeep the tone warm and encouraging. One or two focus points per message, not an exhaustive list.")
	}

	b.WriteString("\nRespond in English so the learner is sure to understand the feedback.")
	return b.String()
}

// Title renders the system prompt for generating a conversation title.
func Title(targetLanguage string) string {
	return fmt.Sprintf(`Summarize this %s practice conversation as a short title.
Reply with the title only: at most five words, no quotes, no trailing punctuation.`, targetLanguage)
}

// personaTags label turns in the history sent to Editor Mate.
var personaTags = map[models.Role]string{
	models.RoleUser:       "User",
	models.RoleChatMate:   "Chat Mate",
	models.RoleEditorMate: "Editor Mate",
}

// History renders the conversation history for the given request type.
// Chat Mate sees only the user/chat-mate exchange, as a plain dialogue.
// Editor Mate sees the full tagged history so it can reference any prior
// turn, including its own earlier comments. Streaming placeholders are
// never included: their content is not final.
func History(messages []models.Message, msgType models.MessageType) []Turn {
	turns := make([]Turn, 0, len(messages))
	for i := range messages {
		m := &messages[i]
		if m.IsStreaming {
			continue
		}
		if msgType == models.TypeChatMateResponse {
			switch m.Role {
			case models.RoleUser:
				turns = append(turns, Turn{Role: "user", Content: m.Content})
			case models.RoleChatMate:
				turns = append(turns, Turn{Role: "assistant", Content: m.Content})
			}
			continue
		}

		role := "user"
		if m.Role != models.RoleUser {
			role = "assistant"
		}
		turns = append(turns, Turn{
			Role:    role,
			Content: fmt.Sprintf("[%s]: %s", personaTags[m.Role], m.Content),
		})
	}
	return turns
}
