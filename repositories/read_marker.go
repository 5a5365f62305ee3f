package repositories

import (
	"business-connect/domain"
	bcerrors "business-connect/errors"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type IReadMarkerRepository interface {
	SaveReadMarker(key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error
	GetReadMarker(key domain.ConversationKey, reader domain.UserID) (domain.Message, error)
}

type ReadMarkerRepository struct {
	db *badger.DB
}

func NewReadMarkerRepository(db *badger.DB) ReadMarkerRepository {
	return ReadMarkerRepository{db: db}
}

// SaveReadMarker records upTo as the last message reader has seen.
// An older message never moves the marker back.
func (r ReadMarkerRepository) SaveReadMarker(key domain.ConversationKey, reader domain.UserID, upTo domain.Message) error {
	markerKey := readKey(key, reader)
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(markerKey)
		switch {
		case err == nil:
			var current domain.Message
			err = item.Value(func(val []byte) error {
				current, err = DecodeMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			if !upTo.CreatedAt.After(current.CreatedAt) {
				return nil
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(markerKey, encodeMessage(upTo))
	})
}

func (r ReadMarkerRepository) GetReadMarker(key domain.ConversationKey, reader domain.UserID) (domain.Message, error) {
	var marker domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(readKey(key, reader))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			marker, err = DecodeMessage(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, bcerrors.ErrNoReadMarker
	}
	return marker, err
}

func readKey(key domain.ConversationKey, reader domain.UserID) []byte {
	return []byte(fmt.Sprintf("read:%s:%s", key, reader))
}
