// Package ids generates task identifiers: a short slug of the mission title
// followed by a random suffix, e.g. "checkout-flow-3f9a1c2e".
package ids

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
)

const (
	maxSlugLen = 24
	suffixLen  = 8
	fallback   = "task"
)

// Generator returns a new task id seeded with a mission title.
type Generator interface {
	NewTaskID(missionTitle string) string
}

// Random draws the suffix from a v4 uuid.
type Random struct{}

func (Random) NewTaskID(missionTitle string) string {
	return Compose(missionTitle, uuid.NewString())
}

// Compose joins the slug of title with the first hex digits of seed.
func Compose(title, seed string) string {
	suffix := strings.ReplaceAll(seed, "-", "")
	if len(suffix) > suffixLen {
		suffix = suffix[:suffixLen]
	}
	return Slug(title) + "-" + suffix
}

// Slug lowercases title, keeps letters and digits and joins words with '-'.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r >= unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			dash = true
			continue
		}
		sep := dash && b.Len() > 0
		need := 1
		if sep {
			need = 2
		}
		if b.Len()+need > maxSlugLen {
			break
		}
		if sep {
			b.WriteByte('-')
		}
		dash = false
		b.WriteRune(r)
	}
	s := b.String()
	if s == "" {
		return fallback
	}
	return s
}

// Sequence yields deterministic suffixes for tests: slug-00000001, slug-00000002, ...
type Sequence struct {
	mu sync.Mutex
	n  int
}

func (s *Sequence) NewTaskID(missionTitle string) string {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()
	return Compose(missionTitle, fmt.Sprintf("%0*d", suffixLen, n))
}
