//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const sequenceBandwidth = 100

type IMessageRepository interface {
	Append(ctx context.Context, message chat.Message) (chat.Message, error)
	QueryDirect(ctx context.Context, userA, userB string) ([]chat.Message, error)
	QueryChannel(ctx context.Context, channelID string) ([]chat.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (chat.Message, error)
	QueryContacts(ctx context.Context, userID string) ([]chat.Contact, error)
}

// MessageRepository is the append-only message log.
// There is no update or delete: a stored message is immutable.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	sequence      *badger.Sequence
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	sequence, err := db.GetSequence([]byte("seq:msg"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, sequence: sequence, limitMessages: limitMessages}, nil
}

// Close returns the unused part of the leased sequence range.
func (m *MessageRepository) Close() error {
	return m.sequence.Release()
}

// Append validates and persists a message in a single transaction.
// The key is formatted as "msg:{conversation}:{created_at_padded}:{sequence_padded}" to:
//  1. Keep each conversation contiguous so history is a single prefix scan.
//  2. Sort chronologically using 19-digit zero padding (lexicographical order).
//  3. Break ties on identical timestamps by insertion order with the badger sequence.
//
// A secondary "idx:msg:{id}" key points back to the primary key.
// Direct messages also refresh the "dm:{user}:{peer}" last-activity key of both participants.
func (m *MessageRepository) Append(_ context.Context, message chat.Message) (chat.Message, error) {
	if err := message.Validate(); err != nil {
		return chat.Message{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return chat.Message{}, err
	}
	seq, err := m.sequence.Next()
	if err != nil {
		return chat.Message{}, err
	}
	message.ID = id

	key := messageKey(message.ConversationKey(), message.CreatedAt, seq)
	data, err := encodeMessage(message)
	if err != nil {
		return chat.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(id), key); err != nil {
			return err
		}
		return touchContacts(txn, message)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return message, nil
}

// QueryDirect returns the conversation between two users, oldest first.
// The order of userA and userB does not matter.
func (m *MessageRepository) QueryDirect(_ context.Context, userA, userB string) ([]chat.Message, error) {
	return m.query(chat.DirectKey(userA, userB))
}

// QueryChannel returns the messages of a channel, oldest first.
func (m *MessageRepository) QueryChannel(_ context.Context, channelID string) ([]chat.Message, error) {
	return m.query(chat.ChannelKey(channelID))
}

func (m *MessageRepository) GetMessage(_ context.Context, id uuid.UUID) (chat.Message, error) {
	var message chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		ref, err := txn.Get(indexKey(id))
		if err != nil {
			return err
		}
		key, err := ref.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			message, err = decodeMessage(v)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, errors.ErrMessageNotFound
	}
	return message, err
}

// QueryContacts returns the peers of the user's direct conversations, most recent activity first.
func (m *MessageRepository) QueryContacts(_ context.Context, userID string) ([]chat.Contact, error) {
	prefix := contactPrefix(userID)
	var contacts []chat.Contact

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			peer, err := url.QueryUnescape(strings.TrimPrefix(string(item.Key()), string(prefix)))
			if err != nil {
				return fmt.Errorf("contact key %q: %w", item.Key(), err)
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			at, err := decodeActivity(value)
			if err != nil {
				return fmt.Errorf("contact %q: %w", peer, err)
			}
			contacts = append(contacts, chat.Contact{UserID: peer, LastMessageTime: at})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(contacts, func(a, b chat.Contact) int {
		return b.LastMessageTime.Compare(a.LastMessageTime)
	})
	return contacts, nil
}

// touchContacts moves the last activity of a direct conversation forward, never backward.
func touchContacts(txn *badger.Txn, message chat.Message) error {
	direct, ok := message.Destination.(chat.Direct)
	if !ok {
		return nil
	}
	keys := [][]byte{contactKey(message.Sender, direct.Recipient)}
	if direct.Recipient != message.Sender {
		keys = append(keys, contactKey(direct.Recipient, message.Sender))
	}
	for _, key := range keys {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if last, err := decodeActivity(value); err == nil && last.After(message.CreatedAt) {
				continue
			}
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, encodeActivity(message.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

// query scans a conversation prefix.
// Without a limit the scan runs forward. With a limit it runs backward from the
// newest key so only the most recent messages are read, then the result is flipped.
func (m *MessageRepository) query(conversation string) ([]chat.Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
	reverse := m.limitMessages != nil
	var messages []chat.Message

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.Reverse = reverse
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if reverse {
			// 0xFF sorts after every digit so the seek lands on the newest key
			seekKey = append(slices.Clone(prefix), 0xFF)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if reverse && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(v []byte) error {
				message, err := decodeMessage(v)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reverse {
		slices.Reverse(messages)
	}
	return messages, nil
}

func messageKey(conversation string, at time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%020d", conversation, at.UnixNano(), seq))
}

func contactPrefix(userID string) []byte {
	return []byte("dm:" + url.QueryEscape(userID) + ":")
}

func contactKey(userID, peerID string) []byte {
	return append(contactPrefix(userID), url.QueryEscape(peerID)...)
}

func encodeActivity(at time.Time) []byte {
	return []byte(fmt.Sprintf("%019d", at.UnixNano()))
}

func decodeActivity(value []byte) (time.Time, error) {
	nanos, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

func indexKey(id uuid.UUID) []byte {
	return []byte("idx:msg:" + id.String())
}
