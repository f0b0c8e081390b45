// Package segment models the host platform's rich message elements.
//
// A message is an ordered slice of Segments. Each Segment has a type tag, a
// string attribute map and optional children (quotes, forwarded figures).
package segment

import "strings"

const (
	TypeText       = "text"
	TypeAt         = "at"
	TypeImg        = "img"
	TypeImage      = "image"
	TypeQuote      = "quote"
	TypeFile       = "file"
	TypeCustomFile = "custom-file"
	TypeFigure     = "figure"
	TypeMessage    = "message"
	TypePassive    = "passive"
	TypeFragment   = ""
)

// Segment is one element of a platform message.
type Segment struct {
	Type     string            `json:"type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Segment         `json:"children,omitempty"`
}

func New(typ string, attrs map[string]string, children ...Segment) Segment {
	return Segment{Type: typ, Attrs: attrs, Children: children}
}

func Text(content string) Segment {
	return New(TypeText, map[string]string{"content": content})
}

func At(id string) Segment {
	return New(TypeAt, map[string]string{"id": id})
}

func Quote(id string) Segment {
	return New(TypeQuote, map[string]string{"id": id})
}

// Image renders an image reference. renderTag "img" carries the URL in src;
// "image" carries it in both url and src for older adapters.
func Image(renderTag, url string) Segment {
	if renderTag == TypeImage {
		return New(TypeImage, map[string]string{"url": url, "src": url})
	}
	return New(TypeImg, map[string]string{"src": url})
}

func File(name, url string) Segment {
	return New(TypeFile, map[string]string{"name": name, "url": url})
}

// CustomFile references a file stored on local disk.
func CustomFile(name, location string) Segment {
	return New(TypeCustomFile, map[string]string{"name": name, "location": location})
}

// Passive is the marker that gives a platform the message id to reply to.
func Passive(messageID string) Segment {
	return New(TypePassive, map[string]string{"messageId": messageID})
}

func Figure(children ...Segment) Segment {
	return New(TypeFigure, nil, children...)
}

func Message(nickname string, children ...Segment) Segment {
	return New(TypeMessage, map[string]string{"nickname": nickname}, children...)
}

func Fragment(children ...Segment) Segment {
	return New(TypeFragment, nil, children...)
}

// Attr returns the attribute value or "" if unset.
func (s Segment) Attr(key string) string {
	if s.Attrs == nil {
		return ""
	}
	return s.Attrs[key]
}

// ImageURL returns the URL of an img/image segment, preferring src.
func (s Segment) ImageURL() string {
	if src := s.Attr("src"); src != "" {
		return src
	}
	return s.Attr("url")
}

func (s Segment) IsImage() bool {
	return s.Type == TypeImg || s.Type == TypeImage
}

// PlainText concatenates the text content of segs and their children.
func PlainText(segs []Segment) string {
	var b strings.Builder
	writePlain(&b, segs)
	return b.String()
}

func writePlain(b *strings.Builder, segs []Segment) {
	for _, s := range segs {
		if s.Type == TypeText {
			b.WriteString(s.Attr("content"))
		}
		writePlain(b, s.Children)
	}
}

// Walk calls fn for each segment depth-first. Returning false skips children.
func Walk(segs []Segment, fn func(Segment) bool) {
	for _, s := range segs {
		if fn(s) {
			Walk(s.Children, fn)
		}
	}
}
