package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"

	"gwi.com/aether-chat/internal/store"
)

var ErrAttachmentEncoding = errors.New("failed to encode attachment")

// Upload is a pending attachment whose bytes have not been read yet.
type Upload struct {
	Name     string
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

// BytesUpload wraps an in-memory payload.
func BytesUpload(name, mimeType string, data []byte) Upload {
	return Upload{
		Name:     name,
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// EncodeAttachments reads every upload concurrently and returns the raw
// payloads alongside their data-URL encodings, both in upload order. Any
// failure fails the whole batch.
func EncodeAttachments(ctx context.Context, uploads []Upload) ([]Attachment, []string, error) {
	if len(uploads) == 0 {
		return nil, nil, nil
	}

	raw := make([]Attachment, len(uploads))
	encoded := make([]string, len(uploads))

	g, ctx := errgroup.WithContext(ctx)
	for i, u := range uploads {
		g.Go(func() error {
			a, err := readUpload(ctx, u)
			if err != nil {
				return fmt.Errorf("%w %q: %w", ErrAttachmentEncoding, u.Name, err)
			}
			raw[i] = a
			encoded[i] = store.EncodeDataURL(a.MIMEType, a.Data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return raw, encoded, nil
}

func readUpload(ctx context.Context, u Upload) (Attachment, error) {
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}
	if u.Open == nil {
		return Attachment{}, errors.New("upload has no content")
	}
	rc, err := u.Open()
	if err != nil {
		return Attachment{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Attachment{}, err
	}
	mimeType := u.MIMEType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{MIMEType: mimeType, Data: data}, nil
}
