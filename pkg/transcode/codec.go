// Package transcode converts messages between the platform segment model and
// the core wire protocol.
package transcode

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/tinyland-inc/gsbridge/pkg/gscore"
	"github.com/tinyland-inc/gsbridge/pkg/logger"
	"github.com/tinyland-inc/gsbridge/pkg/segment"
)

const (
	prefixLink   = "link://"
	prefixBase64 = "base64://"
)

// Options control how inbound elements are rendered.
type Options struct {
	ImgType       string // segment.TypeImg or segment.TypeImage
	FigureSupport bool
	NodeNickname  string
}

// AssetStore persists inline payloads decoded from core elements.
type AssetStore interface {
	SaveImage(data []byte) (string, error)
	SaveFile(data []byte) (string, error)
	ImageURL(name string) string
}

// Fetcher downloads outbound file attachments.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Codec converts single elements. It holds configuration and collaborators
// but no per-message state.
type Codec struct {
	opts    Options
	assets  AssetStore
	fetcher Fetcher
}

func NewCodec(opts Options, assets AssetStore, fetcher Fetcher) *Codec {
	if opts.ImgType == "" {
		opts.ImgType = segment.TypeImg
	}
	return &Codec{opts: opts, assets: assets, fetcher: fetcher}
}

func (c *Codec) Options() Options { return c.opts }

// ToWire converts one platform segment. ok is false for segment types the
// core has no element for; those are dropped without error.
func (c *Codec) ToWire(ctx context.Context, seg segment.Segment) (el gscore.Element, ok bool, err error) {
	switch seg.Type {
	case segment.TypeText:
		return gscore.NewElement(gscore.ElementText, seg.Attr("content")), true, nil
	case segment.TypeAt:
		return gscore.NewElement(gscore.ElementAt, seg.Attr("id")), true, nil
	case segment.TypeImg:
		return gscore.NewElement(gscore.ElementImage, seg.Attr("src")), true, nil
	case segment.TypeImage:
		return gscore.NewElement(gscore.ElementImage, seg.Attr("url")), true, nil
	case segment.TypeQuote:
		return gscore.NewElement(gscore.ElementReply, seg.Attr("id")), true, nil
	case segment.TypeFile:
		data, err := c.fetchFile(ctx, seg.Attr("url"))
		if err != nil {
			return gscore.Element{}, false, &AttachmentError{Element: gscore.ElementFile, Err: err}
		}
		payload := seg.Attr("name") + "|" + base64.StdEncoding.EncodeToString(data)
		return gscore.NewElement(gscore.ElementFile, payload), true, nil
	default:
		return gscore.Element{}, false, nil
	}
}

func (c *Codec) fetchFile(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("file has no url")
	}
	if c.fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}
	return c.fetcher.Fetch(ctx, url)
}

// FromWire renders one core element. replyID is the envelope's message id,
// referenced by rendered quotes. A group element renders to nothing.
func (c *Codec) FromWire(el gscore.Element, replyID string) ([]segment.Segment, error) {
	switch el.Type {
	case gscore.ElementText:
		s, err := el.Text()
		if err != nil {
			return nil, err
		}
		return []segment.Segment{segment.Text(s)}, nil
	case gscore.ElementAt:
		s, err := el.Text()
		if err != nil {
			return nil, err
		}
		return []segment.Segment{segment.At(s)}, nil
	case gscore.ElementImage:
		s, err := el.Text()
		if err != nil {
			return nil, err
		}
		img, err := c.image(s)
		if err != nil {
			return nil, err
		}
		return []segment.Segment{img}, nil
	case gscore.ElementReply:
		s, err := el.Text()
		if err != nil {
			return nil, err
		}
		return []segment.Segment{segment.Fragment(segment.Quote(replyID), segment.Text(s))}, nil
	case gscore.ElementFile:
		s, err := el.Text()
		if err != nil {
			return nil, err
		}
		f, err := c.file(s)
		if err != nil {
			return nil, err
		}
		return []segment.Segment{f}, nil
	case gscore.ElementNode:
		return c.node(el, replyID)
	case gscore.ElementGroup:
		return nil, nil
	default:
		return nil, &UnknownElementTypeError{Type: el.Type}
	}
}

func (c *Codec) image(data string) (segment.Segment, error) {
	switch {
	case strings.HasPrefix(data, prefixLink):
		return segment.Image(c.opts.ImgType, strings.TrimPrefix(data, prefixLink)), nil
	case strings.HasPrefix(data, prefixBase64):
		raw, err := decodeBase64(strings.TrimPrefix(data, prefixBase64))
		if err != nil {
			return segment.Segment{}, &AttachmentError{Element: gscore.ElementImage, Err: err}
		}
		if c.assets == nil {
			return segment.Segment{}, &AttachmentError{Element: gscore.ElementImage, Err: errors.New("no asset store configured")}
		}
		name, err := c.assets.SaveImage(raw)
		if err != nil {
			return segment.Segment{}, &AttachmentError{Element: gscore.ElementImage, Err: err}
		}
		return segment.Image(c.opts.ImgType, c.assets.ImageURL(name)), nil
	default:
		return segment.Image(c.opts.ImgType, data), nil
	}
}

func (c *Codec) file(data string) (segment.Segment, error) {
	name, payload, ok := strings.Cut(data, "|")
	if !ok {
		return segment.Segment{}, &AttachmentError{Element: gscore.ElementFile, Err: errors.New("missing name|base64 separator")}
	}
	raw, err := decodeBase64(payload)
	if err != nil {
		return segment.Segment{}, &AttachmentError{Element: gscore.ElementFile, Err: err}
	}
	if c.assets == nil {
		return segment.Segment{}, &AttachmentError{Element: gscore.ElementFile, Err: errors.New("no asset store configured")}
	}
	location, err := c.assets.SaveFile(raw)
	if err != nil {
		return segment.Segment{}, &AttachmentError{Element: gscore.ElementFile, Err: err}
	}
	return segment.CustomFile(name, location), nil
}

// node renders a forwarded message. Children that fail are logged and
// skipped so one bad item does not drop the whole forward.
func (c *Codec) node(el gscore.Element, replyID string) ([]segment.Segment, error) {
	items, err := el.Nodes()
	if err != nil {
		return nil, err
	}

	var flat []segment.Segment
	var wrapped []segment.Segment
	for _, item := range items {
		rendered, err := c.FromWire(item, replyID)
		if err != nil {
			logger.WarnCF("transcode", "Skipping forwarded item", map[string]any{
				"type":  item.Type,
				"error": err.Error(),
			})
			continue
		}
		if c.opts.FigureSupport {
			wrapped = append(wrapped, segment.Message(c.opts.NodeNickname, rendered...))
		} else {
			flat = append(flat, rendered...)
		}
	}

	if c.opts.FigureSupport {
		return []segment.Segment{segment.Figure(wrapped...)}, nil
	}
	return flat, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
