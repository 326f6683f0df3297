package journal

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/Napageneral/journai/internal/apierr"
	"github.com/Napageneral/journai/internal/db"
	"github.com/Napageneral/journai/internal/llm"
)

// ChatInput is one user turn.
type ChatInput struct {
	Message    string `json:"message"`
	EntryID    *int64 `json:"entry_id,omitempty"`
	BotEnabled bool   `json:"bot_enabled"`
}

// ChatReply always carries the entry id, also when no reply was generated.
type ChatReply struct {
	User    string  `json:"user"`
	Bot     *string `json:"bot"`
	EntryID int64   `json:"entry_id"`
}

// ChatOptions are the sampling options of companion replies.
func (j *Journal) ChatOptions() llm.Options {
	return llm.Options{
		System:            j.chat.SystemPrompt,
		MaxTokens:         j.chat.MaxTokens,
		Temperature:       j.chat.Temperature,
		TopP:              j.chat.TopP,
		RepetitionPenalty: j.chat.RepetitionPenalty,
		Stop:              j.chat.Stop,
	}
}

// Chat stores the user's message, creating the entry (titled with the
// message) when in.EntryID is nil, and optionally asks the model for a reply.
// While another generation runs a bot-enabled exchange fails with KindBusy
// before anything is written. A failed generation only omits the reply.
func (j *Journal) Chat(ctx context.Context, scope Scope, in ChatInput) (*ChatReply, error) {
	const op = "chat"
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, apierr.Validation(op, "message cannot be empty")
	}
	if in.BotEnabled && j.gen.Busy() {
		return nil, apierr.Busy(op, llm.ErrBusy)
	}
	if err := j.requireEntry(ctx, op, in.EntryID); err != nil {
		return nil, err
	}

	reply := &ChatReply{User: msg}
	var (
		history []Message
		msgID   int64
	)
	ts := j.timestamp()
	err := db.WithTx(ctx, j.conn, func(tx *sql.Tx) error {
		if in.EntryID != nil {
			reply.EntryID = *in.EntryID
		} else {
			e, err := createEntry(ctx, tx, scope.SessionID, msg, ts)
			if err != nil {
				return err
			}
			reply.EntryID = e.ID
		}
		var err error
		if msgID, err = AddMessage(ctx, tx, reply.EntryID, SenderUser, msg, ts); err != nil {
			return err
		}
		if in.BotEnabled {
			history, err = messages(ctx, tx, reply.EntryID)
		}
		return err
	})
	if err != nil {
		return nil, apierr.Storage(op, err)
	}
	if !in.BotEnabled {
		return reply, nil
	}

	out, err := j.gen.TryGenerate(ctx, chatPrompt(history, msgID, msg), j.ChatOptions())
	if err == nil {
		out = strings.TrimSpace(out)
		if out == "" {
			err = llm.ErrEmptyResponse
		}
	}
	if err != nil {
		level := j.log.Warn
		if errors.Is(err, llm.ErrBusy) {
			level = j.log.Info
		}
		level("bot reply skipped", "entry_id", reply.EntryID, "error", err)
		return reply, nil
	}

	if _, err := AddMessage(ctx, j.conn, reply.EntryID, SenderBot, out, j.timestamp()); err != nil {
		return nil, apierr.Storage(op, err)
	}
	reply.Bot = &out
	return reply, nil
}

// chatPrompt renders the conversation so far followed by the new message.
func chatPrompt(history []Message, current int64, msg string) string {
	var b strings.Builder
	var lines []string
	for _, m := range history {
		if m.ID == current {
			continue
		}
		who := "User"
		if m.Sender == SenderBot {
			who = "Bot"
		}
		lines = append(lines, who+": "+m.Content)
	}
	if len(lines) > 0 {
		b.WriteString("History:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(msg)
	b.WriteString("\nBot:")
	return b.String()
}
