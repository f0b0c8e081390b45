package channels

import (
	"regexp"
	"strings"

	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

// Attachment is a file or image to upload or link alongside message text.
type Attachment struct {
	Name     string
	URL      string // remote reference
	Location string // local path
}

// Rendered is a segment list flattened into what most platform send APIs take.
type Rendered struct {
	Text    string
	Images  []string
	Files   []Attachment
	ReplyTo string // message id from a passive marker
	QuoteID string
}

func (r Rendered) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Images) == 0 && len(r.Files) == 0
}

// Render flattens segs. mention formats an at-segment id for the platform.
func Render(segs []segment.Segment, mention func(id string) string) Rendered {
	var r Rendered
	var b strings.Builder
	renderInto(&r, &b, segs, mention)
	r.Text = strings.TrimSpace(b.String())
	return r
}

func renderInto(r *Rendered, b *strings.Builder, segs []segment.Segment, mention func(string) string) {
	for _, s := range segs {
		switch s.Type {
		case segment.TypeText:
			b.WriteString(s.Attr("content"))
		case segment.TypeAt:
			if mention != nil {
				b.WriteString(mention(s.Attr("id")))
			} else {
				b.WriteString("@" + s.Attr("id"))
			}
		case segment.TypeImg, segment.TypeImage:
			if u := s.ImageURL(); u != "" {
				r.Images = append(r.Images, u)
			}
		case segment.TypeQuote:
			if r.QuoteID == "" {
				r.QuoteID = s.Attr("id")
			}
		case segment.TypePassive:
			r.ReplyTo = s.Attr("messageId")
		case segment.TypeFile:
			r.Files = append(r.Files, Attachment{Name: s.Attr("name"), URL: s.Attr("url")})
		case segment.TypeCustomFile:
			r.Files = append(r.Files, Attachment{Name: s.Attr("name"), Location: s.Attr("location")})
		case segment.TypeMessage:
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			if nick := s.Attr("nickname"); nick != "" {
				b.WriteString(nick + ":\n")
			}
			renderInto(r, b, s.Children, mention)
			continue
		}
		renderInto(r, b, s.Children, mention)
	}
}

// ParseMentions splits text into text and at segments using re, whose first
// submatch must be the mentioned id.
func ParseMentions(text string, re *regexp.Regexp) []segment.Segment {
	var segs []segment.Segment
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, segment.Text(text[last:loc[0]]))
		}
		segs = append(segs, segment.At(text[loc[2]:loc[3]]))
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, segment.Text(text[last:]))
	}
	return segs
}
