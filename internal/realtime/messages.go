package realtime

import (
	"encoding/json"

	"talentflow/internal/notification/models"
)

// Server message types.
const (
	MessageNotificationNew    = "notification:new"
	MessageNotificationUnread = "notifications:unread"
)

// Message is the envelope of every server-to-client frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: typ, Data: raw})
}

// EncodeNew renders a live notification frame.
func EncodeNew(n *models.Notification) ([]byte, error) {
	return encode(MessageNotificationNew, n)
}

// EncodeUnread renders the backlog frame. An empty backlog is sent as [].
func EncodeUnread(items []*models.Notification) ([]byte, error) {
	if items == nil {
		items = []*models.Notification{}
	}
	return encode(MessageNotificationUnread, items)
}
