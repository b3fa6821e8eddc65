package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"pagegrab/pkg/browser"
	errs "pagegrab/pkg/errors"
	"pagegrab/pkg/logger"
)

var imagesKey = regexp.MustCompile(`"images"\s*:\s*\[`)

// ParseManifestTotal counts the top-level elements of the first "images"
// list in body. A body without one is a manifest_format error.
func ParseManifestTotal(body []byte) (int, error) {
	loc := imagesKey.FindIndex(body)
	if loc == nil {
		return 0, errs.New(errs.KindManifestFormat, "manifest", fmt.Errorf("no \"images\" list in response"))
	}
	// Start at the opening bracket
	list := body[loc[1]-1:]

	var items []json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(list)).Decode(&items); err == nil {
		return len(items), nil
	}

	// Script literals are not always strict JSON; count top-level commas
	n, ok := countElements(list)
	if !ok {
		return 0, errs.New(errs.KindManifestFormat, "manifest", fmt.Errorf("unterminated \"images\" list"))
	}
	return n, nil
}

// countElements counts comma separated elements of the bracketed list at the
// start of s, ignoring nested brackets and string contents
func countElements(s []byte) (int, bool) {
	depth := 0
	count := 0
	sawValue := false
	var quote byte
	escaped := false

	for _, c := range s {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
			if depth == 1 {
				sawValue = true
			}
		case '[', '{', '(':
			depth++
			if depth == 2 {
				sawValue = true
			}
		case ']', '}', ')':
			depth--
			if depth == 0 {
				if sawValue {
					count++
				}
				return count, true
			}
		case ',':
			if depth == 1 {
				if sawValue {
					count++
				}
				sawValue = false
			}
		case ' ', '\t', '\n', '\r':
		default:
			if depth == 1 {
				sawValue = true
			}
		}
	}
	return 0, false
}

// TotalSink receives the expected total
type TotalSink interface {
	Start(total int)
}

// SameDocument reports whether a and b name the same URL ignoring a trailing slash
func SameDocument(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// ManifestObserver learns the expected total from the primary document
type ManifestObserver struct {
	target string
	sink   TotalSink
	log    logger.Logger

	once sync.Once
	seen bool
	mu   sync.Mutex
}

// NewManifestObserver watches responses for target
func NewManifestObserver(target string, sink TotalSink, log logger.Logger) *ManifestObserver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ManifestObserver{target: target, sink: sink, log: log.WithField("component", "manifest")}
}

// Handle inspects one response. Only the first primary document response
// whose body could be read is parsed; later ones cannot reset the total.
func (m *ManifestObserver) Handle(ctx context.Context, r browser.Response) {
	if !browser.IsSuccess(r.Status()) || !SameDocument(r.URL(), m.target) {
		return
	}

	m.mu.Lock()
	if m.seen {
		m.mu.Unlock()
		m.log.DebugWithFields("Primary document seen again, keeping total", map[string]interface{}{"url": r.URL()})
		return
	}
	m.mu.Unlock()

	body, err := r.Body(ctx)
	if err != nil {
		// leave the document unseen so a later delivery can still supply the total
		m.log.WithError(err).Error("Failed to read primary document body")
		return
	}

	m.mu.Lock()
	if m.seen {
		m.mu.Unlock()
		return
	}
	m.seen = true
	m.mu.Unlock()

	total, err := ParseManifestTotal(body)
	if err != nil {
		m.log.WithError(err).ErrorWithFields("Unexpected response format, progress total unknown", map[string]interface{}{
			"url": r.URL(),
		})
		return
	}

	m.once.Do(func() {
		m.log.InfoWithFields("Expected total learned", map[string]interface{}{"total": total})
		m.sink.Start(total)
	})
}

// Seen reports whether the primary document response was observed
func (m *ManifestObserver) Seen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}
