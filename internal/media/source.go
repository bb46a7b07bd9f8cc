package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/core/ports"
)

// Kind identifies which member of a Source is populated.
type Kind int

const (
	KindBytes Kind = iota + 1
	KindStream
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindStream:
		return "stream"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Source is a media item given as raw bytes, a readable stream or a remote
// URL. Exactly one of them is set, which the constructors guarantee.
type Source struct {
	kind     Kind
	data     []byte
	stream   io.Reader
	url      string
	mimeType string

	mu       sync.Mutex
	consumed bool
}

// FromBytes wraps an in-memory buffer.
func FromBytes(data []byte, mimeType string) (*Source, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: media bytes are nil", domain.ErrUsage)
	}
	return &Source{kind: KindBytes, data: data, mimeType: mimeType}, nil
}

// FromReader wraps a stream. Seekable streams are rewound to the start
// before every read; other streams can be read only once.
func FromReader(r io.Reader, mimeType string) (*Source, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: media stream is nil", domain.ErrUsage)
	}
	return &Source{kind: KindStream, stream: r, mimeType: mimeType}, nil
}

// FromURL references media that is fetched over http(s) when opened.
func FromURL(rawURL, mimeType string) (*Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid media url: %v", domain.ErrUsage, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: media url must use http or https", domain.ErrUsage)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: media url has no host", domain.ErrUsage)
	}
	return &Source{kind: KindURL, url: rawURL, mimeType: mimeType}, nil
}

func (s *Source) Kind() Kind       { return s.kind }
func (s *Source) MimeType() string { return s.mimeType }
func (s *Source) URL() string      { return s.url }

// Embedded reports whether the media travels inline rather than by URL.
func (s *Source) Embedded() bool {
	return s.kind == KindBytes || s.kind == KindStream
}

// Open returns a stream positioned at the start of the media and its MIME
// type. URL sources are fetched through f, which may be nil for embedded
// sources; their MIME type falls back to the served content type.
func (s *Source) Open(ctx context.Context, f ports.Fetcher) (io.ReadCloser, string, error) {
	switch s.kind {
	case KindBytes:
		return io.NopCloser(bytes.NewReader(s.data)), s.mimeType, nil
	case KindStream:
		r, err := s.openStream()
		return r, s.mimeType, err
	case KindURL:
		if f == nil {
			return nil, "", fmt.Errorf("%w: no fetcher configured for url media", domain.ErrUsage)
		}
		body, served, err := f.Fetch(ctx, s.url)
		if err != nil {
			return nil, "", fmt.Errorf("fetch media %s: %w", s.url, err)
		}
		mimeType := s.mimeType
		if mimeType == "" {
			mimeType, _, _ = strings.Cut(served, ";")
			mimeType = strings.TrimSpace(mimeType)
		}
		return body, mimeType, nil
	default:
		return nil, "", fmt.Errorf("%w: empty media source", domain.ErrUsage)
	}
}

func (s *Source) openStream() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seeker, ok := s.stream.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: media stream cannot be rewound: %v", domain.ErrUsage, err)
		}
		return io.NopCloser(s.stream), nil
	}

	if s.consumed {
		return nil, fmt.Errorf("%w: media stream was already read and cannot be rewound", domain.ErrUsage)
	}
	return io.NopCloser(&streamReader{src: s}), nil
}

// streamReader marks its source consumed on the first read, so a source that
// was opened but never read stays usable.
type streamReader struct {
	src *Source
}

func (r *streamReader) Read(p []byte) (int, error) {
	r.src.mu.Lock()
	r.src.consumed = true
	r.src.mu.Unlock()
	return r.src.stream.Read(p)
}

// CheckHomogeneous fails unless every item is embedded or every item is a URL.
func CheckHomogeneous(items []*Source) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no media given", domain.ErrUsage)
	}
	var embedded, remote int
	for i, item := range items {
		if item == nil {
			return fmt.Errorf("%w: media item %d is nil", domain.ErrUsage, i)
		}
		if item.Embedded() {
			embedded++
		} else {
			remote++
		}
	}
	if embedded > 0 && remote > 0 {
		return fmt.Errorf("%w: media items mix embedded data (%d) and urls (%d)", domain.ErrUsage, embedded, remote)
	}
	return nil
}
