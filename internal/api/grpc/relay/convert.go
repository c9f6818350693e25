package relay

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/tripwire/internal/domain/relay"
)

// Field names and kinds used inside structpb payloads.
const (
	fieldKind      = "kind"
	fieldID        = "id"
	fieldChat      = "chat"
	fieldName      = "name"
	fieldArgs      = "args"
	fieldText      = "text"
	fieldTime      = "time"
	fieldDelivered = "delivered"

	// KindCommand marks a command payload.
	KindCommand = "command"
	// KindReply marks a reply payload.
	KindReply = "reply"
	// KindAck marks the acknowledgement that opens a Post stream.
	KindAck = "ack"
)

// Ack is the first message of a Post stream.
type Ack struct {
	// ID is the accepted command ID.
	ID string
	// Delivered is how many bots received the command.
	Delivered int
}

// CommandToProto encodes a command.
func CommandToProto(cmd domain.Command) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldKind: KindCommand,
		fieldID:   cmd.ID,
		fieldChat: cmd.Chat,
		fieldName: cmd.Name,
		fieldArgs: cmd.Args,
		fieldTime: formatTime(cmd.PostedAt),
	})
}

// CommandFromProto decodes a command.
func CommandFromProto(msg *structpb.Struct) (domain.Command, error) {
	if kind := stringField(msg, fieldKind); kind != KindCommand {
		return domain.Command{}, fmt.Errorf("%w: unexpected kind %q", domain.ErrInvalidMessage, kind)
	}

	return domain.Command{
		ID:       stringField(msg, fieldID),
		Chat:     stringField(msg, fieldChat),
		Name:     stringField(msg, fieldName),
		Args:     stringField(msg, fieldArgs),
		PostedAt: parseTime(stringField(msg, fieldTime)),
	}, nil
}

// ReplyToProto encodes a reply.
func ReplyToProto(reply domain.Reply) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldKind: KindReply,
		fieldChat: reply.Chat,
		fieldText: reply.Text,
		fieldTime: formatTime(reply.SentAt),
	})
}

// ReplyFromProto decodes a reply.
func ReplyFromProto(msg *structpb.Struct) domain.Reply {
	return domain.Reply{
		Chat:   stringField(msg, fieldChat),
		Text:   stringField(msg, fieldText),
		SentAt: parseTime(stringField(msg, fieldTime)),
	}
}

// AckToProto encodes a Post acknowledgement.
func AckToProto(ack Ack) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldKind:      KindAck,
		fieldID:        ack.ID,
		fieldDelivered: ack.Delivered,
	})
}

// AckFromProto decodes a Post acknowledgement.
func AckFromProto(msg *structpb.Struct) Ack {
	return Ack{
		ID:        stringField(msg, fieldID),
		Delivered: int(msg.GetFields()[fieldDelivered].GetNumberValue()),
	}
}

// KindOf returns the payload kind.
func KindOf(msg *structpb.Struct) string {
	return stringField(msg, fieldKind)
}

// PostRequest builds the payload of a Post call.
func PostRequest(chat, text string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldChat: chat,
		fieldText: text,
	})
}

// ChatAndText extracts the addressing fields of Post and Reply requests.
func ChatAndText(msg *structpb.Struct) (chat, text string) {
	return stringField(msg, fieldChat), stringField(msg, fieldText)
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
