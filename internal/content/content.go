package content

import (
	"errors"
	"regexp"
	"time"

	"github.com/goevery/contentsync/internal/ierr"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

var kindRegex = regexp.MustCompile(`^[\w.+/-]+$`)

// Validate accepts any non-empty tag made of word characters and the
// separators used by media types, so applications can define their own
// kinds next to text and image.
func (k Kind) Validate() error {
	if k == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("kind is required"))
	}

	if !kindRegex.MatchString(string(k)) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid kind: "+string(k)))
	}

	return nil
}

func (k Kind) IsText() bool {
	return k == KindText
}

type Content struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
}

func Empty() Content {
	return Content{Kind: KindText}
}

// Snapshot is a Content as accepted by the relay. Version starts at zero for
// the initial value and grows by one on every accepted update.
type Snapshot struct {
	Content
	Version    uint64    `json:"version"`
	UpdateTime time.Time `json:"updateTime"`
}
