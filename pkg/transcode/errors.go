package transcode

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownElementType is matched by every UnknownElementTypeError.
	ErrUnknownElementType = errors.New("unknown element type")
	// ErrAttachment is matched by every AttachmentError.
	ErrAttachment = errors.New("attachment failed")
)

// UnknownElementTypeError is returned when an inbound element carries a
// type the codec does not render.
type UnknownElementTypeError struct {
	Type string
}

func (e *UnknownElementTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Type)
}

func (e *UnknownElementTypeError) Unwrap() error { return ErrUnknownElementType }

// AttachmentError wraps a failure to fetch, decode or persist the payload
// of an image or file element.
type AttachmentError struct {
	Element string
	Err     error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("%s attachment: %v", e.Element, e.Err)
}

func (e *AttachmentError) Unwrap() []error { return []error{ErrAttachment, e.Err} }
