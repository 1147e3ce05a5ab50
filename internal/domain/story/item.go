// Package story provides the story item and sequence domain entities.
package story

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// Kind represents the content kind of a story item.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindText  Kind = "text"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind is one of the known content kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindText:
		return true
	}
	return false
}

// ImagePayload is the payload for image items.
type ImagePayload struct {
	URL string `mapstructure:"url"`
	Fit string `mapstructure:"fit"`
}

// VideoPayload is the payload for video items.
type VideoPayload struct {
	URL   string `mapstructure:"url"`
	Muted bool   `mapstructure:"muted"`
}

// TextPayload is the payload for text items.
type TextPayload struct {
	Text       string `mapstructure:"text"`
	Background string `mapstructure:"background"`
}

// DecodePayload decodes raw payload settings into the typed payload for the
// given kind. The engine never interprets payloads; this exists only for the
// config/CLI boundary.
func DecodePayload(kind Kind, settings map[string]any) (any, error) {
	switch kind {
	case KindImage:
		var p ImagePayload
		if err := mapstructure.Decode(settings, &p); err != nil {
			return nil, errors.Wrap(err, "failed to decode image payload")
		}
		return p, nil
	case KindVideo:
		var p VideoPayload
		if err := mapstructure.Decode(settings, &p); err != nil {
			return nil, errors.Wrap(err, "failed to decode video payload")
		}
		return p, nil
	case KindText:
		var p TextPayload
		if err := mapstructure.Decode(settings, &p); err != nil {
			return nil, errors.Wrap(err, "failed to decode text payload")
		}
		return p, nil
	default:
		return nil, errors.Newf("unknown item kind: %s", kind)
	}
}

// Item represents one unit of timed content in a story sequence.
type Item struct {
	ID       string        // Item identifier
	Kind     Kind          // Content kind
	Duration time.Duration // Display duration
	Payload  any           // Opaque content reference, handed to the renderer

	shown bool
}

// Shown reports whether the item has been shown in the current cycle.
func (i *Item) Shown() bool {
	return i.shown
}
