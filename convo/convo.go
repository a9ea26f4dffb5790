// Package convo persists conversations: an index record plus one ordered
// message-log record per conversation.
package convo

import (
	"context"
	"encoding/json"
	"strings"

	oni "github.com/onios/oni"
)

const indexPath = "conversations"

// titleRunes caps auto-generated conversation titles.
const titleRunes = 60

// Store reads and writes conversations and their message logs.
type Store struct {
	records oni.RecordStore
}

var _ oni.ConversationLog = (*Store)(nil)

// New creates a conversation store on top of records.
func New(records oni.RecordStore) *Store {
	return &Store{records: records}
}

func messagesPath(conversationID string) string {
	return "conversations/" + conversationID + "/messages"
}

// Create registers a new conversation and returns its index entry.
func (s *Store) Create(ctx context.Context, title string) (oni.Conversation, error) {
	conv := oni.Conversation{
		ID:        oni.NewID(),
		Title:     title,
		CreatedAt: oni.NowUnix(),
	}
	err := s.records.Update(ctx, indexPath, func(raw []byte) (any, error) {
		return append(decodeIndex(raw), conv), nil
	})
	if err != nil {
		return oni.Conversation{}, err
	}
	return conv, nil
}

// List returns all conversations in index order.
func (s *Store) List(ctx context.Context) ([]oni.Conversation, error) {
	var all []oni.Conversation
	if err := s.records.Read(ctx, indexPath, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// Get returns one conversation's index entry.
func (s *Store) Get(ctx context.Context, id string) (oni.Conversation, bool, error) {
	all, err := s.List(ctx)
	if err != nil {
		return oni.Conversation{}, false, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, true, nil
		}
	}
	return oni.Conversation{}, false, nil
}

// Messages returns the ordered message log. An unknown conversation yields
// an empty log.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]oni.Message, error) {
	var msgs []oni.Message
	if err := s.records.Read(ctx, messagesPath(conversationID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Append adds messages to the log and refreshes the index entry
// (lastMessageAt, messageCount), creating the entry on first append.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...oni.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	err := s.records.Update(ctx, messagesPath(conversationID), func(raw []byte) (any, error) {
		var log []oni.Message
		if raw != nil {
			_ = json.Unmarshal(raw, &log)
		}
		return append(log, msgs...), nil
	})
	if err != nil {
		return err
	}

	last := msgs[len(msgs)-1].Timestamp
	return s.records.Update(ctx, indexPath, func(raw []byte) (any, error) {
		all := decodeIndex(raw)
		for i := range all {
			if all[i].ID == conversationID {
				all[i].LastMessageAt = last
				all[i].MessageCount += len(msgs)
				return all, nil
			}
		}
		return append(all, oni.Conversation{
			ID:            conversationID,
			Title:         deriveTitle(msgs),
			CreatedAt:     oni.NowUnix(),
			LastMessageAt: last,
			MessageCount:  len(msgs),
		}), nil
	})
}

// Delete removes a conversation and its message log, reporting whether the
// conversation existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.records.Update(ctx, indexPath, func(raw []byte) (any, error) {
		all := decodeIndex(raw)
		kept := all[:0:0]
		for _, c := range all {
			if c.ID == id {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		return kept, nil
	})
	if err != nil {
		return false, err
	}
	if err := s.records.Delete(ctx, messagesPath(id)); err != nil {
		return removed, err
	}
	return removed, nil
}

// deriveTitle takes the first user message's opening words as the title.
func deriveTitle(msgs []oni.Message) string {
	for _, m := range msgs {
		if m.Role == oni.RoleUser && m.Content != "" {
			title := strings.TrimSpace(m.Content)
			if r := []rune(title); len(r) > titleRunes {
				title = string(r[:titleRunes]) + "…"
			}
			return title
		}
	}
	return "New conversation"
}

func decodeIndex(raw []byte) []oni.Conversation {
	var all []oni.Conversation
	if raw != nil {
		_ = json.Unmarshal(raw, &all)
	}
	return all
}
