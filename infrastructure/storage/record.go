package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records are stored as protobuf Struct values so that optional fields stay optional on disk.

func encodeMessage(message chat.Message) ([]byte, error) {
	fields := map[string]any{
		"id":        message.ID.String(),
		"kind":      string(message.Kind),
		"sender":    message.Sender,
		"createdAt": message.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if message.Body != "" {
		fields["body"] = message.Body
	}
	if message.AttachmentRef != "" {
		fields["attachmentRef"] = message.AttachmentRef
	}
	switch dst := message.Destination.(type) {
	case chat.Direct:
		fields["recipient"] = dst.Recipient
	case chat.Group:
		fields["channelId"] = dst.ChannelID
	default:
		return nil, fmt.Errorf("%w: unsupported destination %T", errors.ErrMalformedMessage, message.Destination)
	}
	record, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(record)
}

func decodeMessage(data []byte) (chat.Message, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(data, &record); err != nil {
		return chat.Message{}, err
	}
	fields := record.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return chat.Message{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"].GetStringValue())
	if err != nil {
		return chat.Message{}, err
	}
	destination, err := chat.NewDestination(fields["recipient"].GetStringValue(), fields["channelId"].GetStringValue())
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:            id,
		Kind:          chat.Kind(fields["kind"].GetStringValue()),
		Body:          fields["body"].GetStringValue(),
		AttachmentRef: fields["attachmentRef"].GetStringValue(),
		Sender:        fields["sender"].GetStringValue(),
		Destination:   destination,
		CreatedAt:     createdAt,
	}, nil
}

func encodeChannel(channel chat.Channel) ([]byte, error) {
	record, err := structpb.NewStruct(map[string]any{
		"id":        channel.ID,
		"name":      channel.Name,
		"admin":     channel.Admin,
		"members":   lo.Map(channel.Members, func(m string, _ int) any { return m }),
		"createdAt": channel.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(record)
}

func decodeChannel(data []byte) (chat.Channel, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(data, &record); err != nil {
		return chat.Channel{}, err
	}
	fields := record.GetFields()
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"].GetStringValue())
	if err != nil {
		return chat.Channel{}, err
	}
	members := lo.Map(fields["members"].GetListValue().GetValues(), func(v *structpb.Value, _ int) string {
		return v.GetStringValue()
	})
	return chat.Channel{
		ID:        fields["id"].GetStringValue(),
		Name:      fields["name"].GetStringValue(),
		Admin:     fields["admin"].GetStringValue(),
		Members:   members,
		CreatedAt: createdAt,
	}, nil
}
