// Package gscore defines the JSON frames exchanged with the core over its
// websocket endpoint.
package gscore

import (
	"encoding/json"
	"fmt"
)

// Element types on the wire.
const (
	ElementText  = "text"
	ElementImage = "image"
	ElementAt    = "at"
	ElementReply = "reply"
	ElementFile  = "file"
	ElementNode  = "node"
	ElementGroup = "group"
)

// Conversation kinds carried in user_type / target_type.
const (
	KindGroup      = "group"
	KindDirect     = "direct"
	KindChannel    = "channel"
	KindSubChannel = "sub_channel"
	KindUnknown    = "unknown"
)

// Element is a tagged {type, data} item. Data is a JSON string for most
// types and an array of Elements for node.
type Element struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewElement marshals data into an Element. Values that cannot be marshaled
// produce an element with null data.
func NewElement(typ string, data any) Element {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return Element{Type: typ, Data: raw}
}

// Text decodes Data as a string.
func (e Element) Text() (string, error) {
	if len(e.Data) == 0 {
		return "", fmt.Errorf("%s element has no data", e.Type)
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("%s element data is not a string: %w", e.Type, err)
	}
	return s, nil
}

// Nodes decodes Data as a nested element list.
func (e Element) Nodes() ([]Element, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var nodes []Element
	if err := json.Unmarshal(e.Data, &nodes); err != nil {
		return nil, fmt.Errorf("%s element data is not an element list: %w", e.Type, err)
	}
	return nodes, nil
}

// MessageSend is the frame sent from the bridge to the core.
type MessageSend struct {
	BotID     string    `json:"bot_id"`
	BotSelfID string    `json:"bot_self_id"`
	MsgID     string    `json:"msg_id"`
	UserType  string    `json:"user_type"`
	GroupID   string    `json:"group_id,omitempty"`
	UserID    string    `json:"user_id"`
	UserPM    int       `json:"user_pm"`
	Content   []Element `json:"content"`
}

// MessageReceive is a frame pushed by the core. A nil TargetID marks a log
// frame that must not be routed.
type MessageReceive struct {
	BotID      string    `json:"bot_id"`
	BotSelfID  string    `json:"bot_self_id"`
	MsgID      string    `json:"msg_id,omitempty"`
	TargetType string    `json:"target_type"`
	TargetID   *string   `json:"target_id"`
	Content    []Element `json:"content"`
}

func (m MessageReceive) IsLog() bool {
	return m.TargetID == nil
}

// Target returns the target id, or "" for log frames.
func (m MessageReceive) Target() string {
	if m.TargetID == nil {
		return ""
	}
	return *m.TargetID
}
