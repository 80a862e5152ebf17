package adapt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/japaniel/lingomorph/pkg/db"
	"github.com/japaniel/lingomorph/pkg/llm"
)

// Ask sends a follow-up question about the history entry id and stores both
// turns in its chat history. When the completion fails an "Error: ..."
// assistant turn is stored and the error is returned as well.
func (s *Service) Ask(ctx context.Context, id, question string) (db.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return db.Message{}, errors.New("adapt: empty question")
	}
	item, err := db.GetAdaptation(s.DB, id)
	if err != nil {
		return db.Message{}, fmt.Errorf("adapt: load %s: %w", id, err)
	}

	if err := db.AppendChatMessage(s.DB, id, s.message(db.RoleUser, question)); err != nil {
		return db.Message{}, err
	}

	resp, err := s.Completer.Complete(ctx, llm.Request{
		Prompt: fmt.Sprintf(tutorPrompt, item.Original, item.Adapted, s.Settings.TargetLanguage, s.Settings.NativeLanguage, question),
	})
	if err != nil {
		s.logger().Warn("chat completion failed", "adaptation", id, "error", err)
		reply := s.message(db.RoleAssistant, "Error: "+err.Error())
		if saveErr := db.AppendChatMessage(s.DB, id, reply); saveErr != nil {
			return reply, errors.Join(err, saveErr)
		}
		return reply, err
	}

	reply := s.message(db.RoleAssistant, strings.TrimSpace(resp.Text))
	if err := db.AppendChatMessage(s.DB, id, reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func (s *Service) message(role, content string) db.Message {
	id := uuid.NewString()
	if s.NewID != nil {
		id = s.NewID()
	}
	return db.Message{ID: id, Role: role, Content: content, Timestamp: s.now()}
}
