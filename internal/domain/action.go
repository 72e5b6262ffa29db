package domain

import (
	"encoding/json"
	"fmt"
)

// ActionKind tags a callback action descriptor.
type ActionKind string

const (
	ActionPay           ActionKind = "pay"
	ActionPayDiscounted ActionKind = "payd"
	ActionCheckPending  ActionKind = "chk"
	ActionDismiss       ActionKind = "dis"
	ActionPaidAck       ActionKind = "ack"
)

const actionVersion = 1

// Action is the structured callback payload attached to inline keyboard
// buttons. It replaces delimiter-encoded strings: the payload is versioned
// JSON with short field names to stay within the callback size limit, and
// images are referenced by their numeric id rather than the long key.
type Action struct {
	Version int        `json:"v"`
	Kind    ActionKind `json:"a"`
	ImageID int64      `json:"n,omitempty"`
	Price   int        `json:"p,omitempty"`
}

// Encode serializes the action for use as callback data.
func (a Action) Encode() (string, error) {
	a.Version = actionVersion
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode action: %w", err)
	}
	return string(raw), nil
}

// DecodeAction parses callback data produced by Encode. Unknown versions and
// malformed payloads yield ErrInvalidAction.
func DecodeAction(data string) (Action, error) {
	var a Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if a.Version != actionVersion {
		return Action{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidAction, a.Version)
	}
	switch a.Kind {
	case ActionPay, ActionPayDiscounted, ActionCheckPending, ActionDismiss, ActionPaidAck:
	default:
		return Action{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, a.Kind)
	}
	return a, nil
}
