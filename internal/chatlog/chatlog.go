// Package chatlog persists per-user chat transcripts: one chat record
// per user holding a rotating thread ID, the last composed greeting,
// and the ordered list of turns.
package chatlog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// ErrNotFound is returned when a user has no chat record yet.
var ErrNotFound = errors.New("chat not found")

// Turn is a single utterance in a chat transcript.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record is a user's chat: the active conversation thread, the last
// greeting shown, and the transcript.
type Record struct {
	UserID       string    `json:"userId"`
	ThreadID     uuid.UUID `json:"threadId"`
	LastGreeting string    `json:"lastGreeting"`
	Turns        []Turn    `json:"turns"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUserTurn builds a user turn with a fresh "u-" prefixed ID.
func NewUserTurn(content, mode string) Turn {
	return Turn{
		ID:        "u-" + uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}

// NewBotTurn builds a bot turn with a fresh "b-" prefixed ID.
func NewBotTurn(content, mode string) Turn {
	return Turn{
		ID:        "b-" + uuid.NewString(),
		Role:      RoleBot,
		Content:   content,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}
