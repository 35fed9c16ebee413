package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/literate-limited/beeline/core"
)

// TempIDPrefix marks a locally generated message id that has not been
// acknowledged by the server yet.
const TempIDPrefix = "local-"

var nowFunc = time.Now // mockable

type (
	// Message is one entry in a chat's ordered log. A Pending message carries a
	// locally generated temporary id; the authoritative id is assigned by the
	// server once the send is acknowledged.
	Message struct {
		ID        string    `json:"id,omitempty"`
		ChatID    string    `json:"chatId"`
		SenderID  string    `json:"senderId"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"createdAt"`
		Pending   bool      `json:"-"`
	}

	// SendInput is the validated input of Service.Send.
	SendInput struct {
		ChatID  string `json:"chatId" validate:"required"`
		Content string `json:"content" validate:"required,notblank"`
	}
)

func (in *SendInput) Validate() error {
	in.ChatID = core.CleanString(in.ChatID)
	in.Content = core.CleanString(in.Content)
	return core.Validate.Struct(in)
}

// NewPendingMessage builds the optimistic local entry for a send that has not
// been acknowledged yet.
func NewPendingMessage(chatID, senderID, content string) Message {
	return Message{
		ID:        tempID(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: nowFunc().UTC(),
		Pending:   true,
	}
}

func tempID() string {
	rand := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, nowFunc().UnixMilli(), rand)
}
