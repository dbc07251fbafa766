package internal

import (
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is one Badger entry rendered for humans.
type InspectRow struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	Timestamp string `json:"timestamp"`
	EntityID  string `json:"entityId"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow

// Scan maps at most limit entries under prefix. A limit <= 0 means no limit.
func Scan(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(rows) == limit {
				return nil
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// DefaultMapper only reads the key.
// Message keys look like "msg:{dm|ch}:{conversation}:{nanos}:{sequence}".
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Namespace: "-",
		Timestamp: "--:--:--",
		EntityID:  "-",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	switch {
	case parts[0] == "msg" && len(parts) == 5:
		row.Namespace = parts[1] + ":" + parts[2]
		if nanos, err := strconv.ParseInt(parts[3], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, nanos).UTC().Format(time.DateTime)
		}
		if row.EntityID = strings.TrimLeft(parts[4], "0"); row.EntityID == "" {
			row.EntityID = "0"
		}
	case len(parts) >= 2:
		row.EntityID = parts[len(parts)-1]
		if len(parts) > 2 {
			row.Namespace = strings.Join(parts[1:len(parts)-1], ":")
		}
	}
	return row
}
