package chunks

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// SlugProvider issues opaque, URL-safe external identifiers for chunks.
type SlugProvider interface {
	NewSlug() (string, error)
}

const slugByteLength = 9 // 12 characters once base64url encoded

type randomSlugProvider struct{}

// NewRandomSlugProvider constructs a SlugProvider backed by crypto/rand.
func NewRandomSlugProvider() SlugProvider {
	return &randomSlugProvider{}
}

func (p *randomSlugProvider) NewSlug() (string, error) {
	raw := make([]byte, slugByteLength)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
