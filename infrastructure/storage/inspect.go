package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/internal"
	"fmt"
	"strings"
	"time"
)

// RecordMapper decodes message and channel values on top of internal.DefaultMapper.
func RecordMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "msg:"):
		message, err := decodeMessage(val)
		if err != nil {
			row.Detail = "Error: " + err.Error()
			return row
		}
		row.Type = strings.ToUpper(string(message.Kind))
		content := message.Body
		if message.Kind == chat.KindFile {
			content = "[" + message.AttachmentRef + "]"
		}
		row.Detail = fmt.Sprintf("%s: %s", message.Sender, content)
	case strings.HasPrefix(key, "channel:"):
		channel, err := decodeChannel(val)
		if err != nil {
			row.Detail = "Error: " + err.Error()
			return row
		}
		row.Detail = fmt.Sprintf("%s (admin %s, %d members)", channel.Name, channel.Admin, len(channel.Members))
	case strings.HasPrefix(key, "idx:msg:"):
		row.Detail = "-> " + string(val)
	case strings.HasPrefix(key, "dm:"):
		at, err := decodeActivity(val)
		if err != nil {
			row.Detail = "Error: " + err.Error()
			return row
		}
		row.Type = "CONTACT"
		row.Timestamp = at.Format(time.DateTime)
		row.Detail = "last message"
	}
	return row
}
