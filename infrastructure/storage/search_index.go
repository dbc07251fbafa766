//go:generate go run go.uber.org/mock/mockgen -source=search_index.go -destination=../../mocks/mock_search_index.go -package=mocks
package storage

import (
	"chat-relay/domain/chat"
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldBody        = "body"
	fieldParticipant = "participant"
	fieldChannel     = "channel"
	fieldLanguage    = "lang"
)

type ISearchIndex interface {
	Search(ctx context.Context, cmd chat.SearchCommand, channelIDs []string) ([]uuid.UUID, error)
}

// SearchIndex keeps a full-text index of text messages.
// It is fed after persistence and is never the source of truth: hits are ids
// that must be resolved against the message log.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Consume indexes a stored text message. File messages have nothing to index.
func (s *SearchIndex) Consume(_ context.Context, message chat.Message) error {
	if message.Kind != chat.KindText {
		return nil
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(fieldBody, message.Body))

	switch dst := message.Destination.(type) {
	case chat.Direct:
		doc.AddField(bluge.NewKeywordField(fieldParticipant, message.Sender))
		doc.AddField(bluge.NewKeywordField(fieldParticipant, dst.Recipient))
	case chat.Group:
		doc.AddField(bluge.NewKeywordField(fieldChannel, dst.ChannelID))
	default:
		return fmt.Errorf("unsupported destination %T", message.Destination)
	}

	if info := whatlanggo.Detect(message.Body); info.IsReliable() {
		doc.AddField(bluge.NewKeywordField(fieldLanguage, info.Lang.Iso6391()))
	}
	return s.writer.Update(doc.ID(), doc)
}

// Search returns the ids of the best matching messages visible to the user:
// its direct conversations and the given channels.
func (s *SearchIndex) Search(ctx context.Context, cmd chat.SearchCommand, channelIDs []string) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	scope := bluge.NewBooleanQuery().
		AddShould(bluge.NewTermQuery(cmd.UserID).SetField(fieldParticipant)).
		SetMinShould(1)
	for _, channelID := range channelIDs {
		scope.AddShould(bluge.NewTermQuery(channelID).SetField(fieldChannel))
	}

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(cmd.Terms).SetField(fieldBody)).
		AddMust(scope)
	if cmd.Language != "" {
		query.AddMust(bluge.NewTermQuery(cmd.Language).SetField(fieldLanguage))
	}

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(cmd.Limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.ParseBytes(value)
			if parseErr != nil {
				s.log.Warn("Unparsable id in search index", "id", string(value))
				return false
			}
			ids = append(ids, id)
			return false
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
