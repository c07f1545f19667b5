package amqp

import (
	"encoding/json"
	"time"
)

// PushMessage asks the sync worker to mirror one household to the cloud
// backend. It carries only the key and the local revision; the worker loads
// the aggregate from the local store, so a stale message simply re-pushes
// the latest state.
type PushMessage struct {
	HouseholdKey string    `json:"householdKey"`
	Revision     int64     `json:"revision"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewPushMessage(householdKey string, revision int64) *PushMessage {
	return &PushMessage{
		HouseholdKey: householdKey,
		Revision:     revision,
		Timestamp:    time.Now(),
	}
}

func (m *PushMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PushMessageFromJSON(data []byte) (*PushMessage, error) {
	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
