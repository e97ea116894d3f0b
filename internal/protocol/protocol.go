package protocol

import (
	"encoding/json"
	"errors"

	"github.com/goevery/contentsync/internal/content"
	"github.com/goevery/contentsync/internal/ierr"
)

const (
	TypeSync   = "sync"
	TypeUpdate = "update"
)

// SyncMessage is sent by the relay. Text is only populated for the flat
// text variant, in which case Content is nil.
type SyncMessage struct {
	Type    string           `json:"type"`
	Content *content.Content `json:"content,omitempty"`
	Text    *string          `json:"text,omitempty"`
	Version uint64           `json:"version,omitempty"`
}

func NewSync(snapshot content.Snapshot) SyncMessage {
	c := snapshot.Content

	return SyncMessage{
		Type:    TypeSync,
		Content: &c,
		Version: snapshot.Version,
	}
}

func NewTextSync(text string) SyncMessage {
	return SyncMessage{
		Type: TypeSync,
		Text: &text,
	}
}

type UpdateMessage struct {
	Type    string       `json:"type"`
	Kind    content.Kind `json:"kind"`
	Payload string       `json:"payload"`
}

func NewUpdate(c content.Content) UpdateMessage {
	return UpdateMessage{
		Type:    TypeUpdate,
		Kind:    c.Kind,
		Payload: c.Payload,
	}
}

// updateFrame accepts the canonical shape along with the two older shapes
// still sent by existing front-ends: {text} and {contentType, content}.
type updateFrame struct {
	Type    string  `json:"type"`
	Kind    *string `json:"kind"`
	Payload *string `json:"payload"`

	Text        *string `json:"text"`
	ContentType *string `json:"contentType"`
	Content     *string `json:"content"`
}

func DecodeUpdate(data []byte) (content.Content, error) {
	var frame updateFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid json: "+err.Error()))
	}

	if frame.Type != TypeUpdate {
		return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unsupported message type: "+frame.Type))
	}

	var c content.Content

	switch {
	case frame.Kind != nil || frame.Payload != nil:
		if frame.Kind == nil {
			return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing kind"))
		}
		if frame.Payload == nil {
			return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing payload"))
		}
		c = content.Content{Kind: content.Kind(*frame.Kind), Payload: *frame.Payload}
	case frame.Text != nil:
		c = content.Content{Kind: content.KindText, Payload: *frame.Text}
	case frame.ContentType != nil && frame.Content != nil:
		c = content.Content{Kind: content.Kind(*frame.ContentType), Payload: *frame.Content}
	default:
		return content.Content{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing kind and payload"))
	}

	if err := c.Kind.Validate(); err != nil {
		return content.Content{}, err
	}

	return c, nil
}

type syncFrame struct {
	Type    string           `json:"type"`
	Content *content.Content `json:"content"`
	Text    *string          `json:"text"`
	Version uint64           `json:"version"`
}

// DecodeSync understands both the nested content shape and the flat text
// shape.
func DecodeSync(data []byte) (content.Content, uint64, error) {
	var frame syncFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return content.Content{}, 0, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid json: "+err.Error()))
	}

	if frame.Type != TypeSync {
		return content.Content{}, 0, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unsupported message type: "+frame.Type))
	}

	switch {
	case frame.Content != nil:
		return *frame.Content, frame.Version, nil
	case frame.Text != nil:
		return content.Content{Kind: content.KindText, Payload: *frame.Text}, frame.Version, nil
	default:
		return content.Content{}, 0, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("sync without content"))
	}
}
