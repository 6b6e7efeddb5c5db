package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

type CursorPage[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// BillCursor is the keyset position (issue date, id) of the last bill on a
// page.
type BillCursor struct {
	Date time.Time `json:"date"`
	ID   int64     `json:"id"`
}

func EncodeCursor(cursor BillCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor treats an empty cursor as "start from the newest bill".
func DecodeCursor(encoded string) (BillCursor, error) {
	var cursor BillCursor
	if encoded == "" {
		return BillCursor{
			Date: time.Now().Add(time.Hour),
			ID:   int64(1<<63 - 1),
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, err
	}

	err = json.Unmarshal(data, &cursor)
	return cursor, err
}
