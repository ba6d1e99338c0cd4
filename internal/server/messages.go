package server

import (
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/dvcrn/turmeric/internal/paprika"
)

const (
	wsTypeHello  = "hello"
	wsTypeUpdate = "update"
)

type wsResource struct {
	FetchedAt time.Time `json:"fetched_at"`
	Items     int       `json:"items"`
}

// wsMessage summarizes a snapshot; clients fetch payloads over HTTP
type wsMessage struct {
	Type      string                `json:"type"`
	Changed   []string              `json:"changed,omitempty"`
	Resources map[string]wsResource `json:"resources"`
	UpdatedAt time.Time             `json:"updated_at"`
	Error     string                `json:"error,omitempty"`
}

func summarize(msgType string, snap *coordinator.Snapshot) wsMessage {
	msg := wsMessage{Type: msgType, Resources: map[string]wsResource{}}
	if snap == nil {
		return msg
	}
	msg.UpdatedAt = snap.UpdatedAt
	for name, e := range snap.Entries {
		msg.Resources[name] = wsResource{FetchedAt: e.FetchedAt, Items: paprika.ItemCount(e.Payload)}
	}
	return msg
}

func newHelloMessage(snap *coordinator.Snapshot) wsMessage {
	return summarize(wsTypeHello, snap)
}

func newUpdateMessage(u coordinator.Update) wsMessage {
	msg := summarize(wsTypeUpdate, u.Snapshot)
	msg.Changed = u.Changed
	if u.Err != nil {
		msg.Error = u.Err.Error()
	}
	return msg
}
