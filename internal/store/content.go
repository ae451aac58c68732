package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type ContentKind int

const (
	ContentText ContentKind = iota
	ContentImage
)

// Image is a binary image payload.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the image as data:<mime>;base64,<payload>.
func (i *Image) DataURL() string {
	return EncodeDataURL(i.MIMEType, i.Data)
}

// Content is the body of a message: either text or an image. The zero value is
// empty text.
type Content struct {
	kind  ContentKind
	text  string
	image *Image
}

func Text(s string) Content {
	return Content{kind: ContentText, text: s}
}

func ImageContent(mimeType string, data []byte) Content {
	return Content{kind: ContentImage, image: &Image{MIMEType: mimeType, Data: data}}
}

func (c Content) Kind() ContentKind { return c.kind }

// Text returns the text body, or "" for image content.
func (c Content) Text() string {
	if c.kind == ContentText {
		return c.text
	}
	return ""
}

func (c Content) Image() (*Image, bool) {
	if c.kind == ContentImage && c.image != nil {
		return c.image, true
	}
	return nil, false
}

// String is the external representation used for persistence and export:
// the text itself, or the image as a data URL.
func (c Content) String() string {
	if img, ok := c.Image(); ok {
		return img.DataURL()
	}
	return c.text
}

func (c Content) clone() Content {
	if c.image == nil {
		return c
	}
	img := *c.image
	img.Data = append([]byte(nil), c.image.Data...)
	c.image = &img
	return c
}

func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON reads text that is itself a base64 image data URL back as an
// image; the single-string format cannot tell the two apart.
func (c *Content) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("content must be a string: %w", err)
	}
	if img, err := ParseDataURL(s); err == nil && strings.HasPrefix(img.MIMEType, "image/") {
		*c = Content{kind: ContentImage, image: img}
		return nil
	}
	*c = Text(s)
	return nil
}

var errNotDataURL = errors.New("not a base64 data URL")

func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL.
func ParseDataURL(s string) (*Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, errNotDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errNotDataURL
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok || mimeType == "" {
		return nil, errNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	return &Image{MIMEType: mimeType, Data: data}, nil
}
