package usecase

import (
	"context"
	"strings"

	"chat-agent/internal/domain"
)

const maxTitleRunes = 60

// buildTurns returns the turns sent to the gateway for userMsg. With a window
// of 1 that is the user message alone. Wider windows take the stored messages
// up to and including userMsg, keeping the last historyWindow of them; if the
// history cannot be read the request falls back to the single turn.
func (s *ChatService) buildTurns(ctx context.Context, userMsg domain.Message) []domain.ChatMessage {
	single := []domain.ChatMessage{{Role: domain.RoleUser, Content: userMsg.Content}}
	if s.historyWindow <= 1 {
		return single
	}

	history, err := s.messages.ListMessages(ctx, userMsg.ConversationID)
	if err != nil {
		s.log.Warn().Err(err).Str("conversationId", userMsg.ConversationID).Msg("history read failed; sending single turn")
		return single
	}

	end := -1
	for i, m := range history {
		if m.ID == userMsg.ID {
			end = i
			break
		}
	}
	if end < 0 {
		return single
	}
	start := max(0, end+1-s.historyWindow)

	turns := make([]domain.ChatMessage, 0, end+1-start)
	for _, m := range history[start : end+1] {
		turns = append(turns, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return turns
}

// titleFrom derives a conversation name from the first user message.
func titleFrom(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
	}
	return title
}
