package relay

import (
	"strings"
	"time"
)

// commandPrefix marks a message as a command.
const commandPrefix = "/"

// Command is one operator message delivered to subscribed monitors.
type Command struct {
	// ID uniquely identifies the posted command.
	ID string
	// Chat is where replies should be addressed.
	Chat string
	// Name is the command word without the leading slash, lower-cased.
	Name string
	// Args is everything after the command word, trimmed.
	Args string
	// PostedAt is when the relay accepted the command.
	PostedAt time.Time
}

// Reply is a message a monitor sends back to a chat.
type Reply struct {
	// Chat is the recipient.
	Chat string
	// Text is the message body.
	Text string
	// SentAt is when the relay accepted the reply.
	SentAt time.Time
}

// ParseCommand splits "/name args" into its parts. A "@bot" suffix on the
// name is dropped. Text without a leading slash is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, commandPrefix) {
		return "", "", false
	}

	head, rest, _ := strings.Cut(strings.TrimPrefix(text, commandPrefix), " ")
	head, _, _ = strings.Cut(head, "@")

	if head == "" {
		return "", "", false
	}

	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Text renders the command back to its wire form.
func (c Command) Text() string {
	if c.Args == "" {
		return commandPrefix + c.Name
	}

	return commandPrefix + c.Name + " " + c.Args
}
