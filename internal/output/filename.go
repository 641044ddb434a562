package output

import (
	"strconv"
	"strings"
	"time"

	"caseexport/internal/schema"
)

// TimestampLayout is the timestamp component of artifact filenames (UTC).
const TimestampLayout = "20060102T150405Z"

// NoPart marks a filename without a batch index component.
const NoPart = -1

// Filename composes an artifact name:
//
//	<base>[-<entity>]-<timestamp>[-<part+1>].<ext>
//
// entity is omitted when empty, the part suffix when part is NoPart.
// Spaces and path separators in base and entity become dashes.
func Filename(base, entity string, ts time.Time, part int, ext string) string {
	var b strings.Builder
	b.WriteString(slug(base))
	if entity != "" {
		b.WriteByte('-')
		b.WriteString(slug(entity))
	}
	b.WriteByte('-')
	b.WriteString(ts.UTC().Format(TimestampLayout))
	if part != NoPart {
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(part + 1))
	}
	b.WriteByte('.')
	b.WriteString(ext)
	return b.String()
}

// Pattern is the glob matching every Filename for base/entity/ext, whatever
// the timestamp and part.
func Pattern(base, entity, ext string) string {
	var b strings.Builder
	b.WriteString(slug(base))
	if entity != "" {
		b.WriteByte('-')
		b.WriteString(slug(entity))
	}
	b.WriteString("-*.")
	b.WriteString(ext)
	return b.String()
}

// ParseFilename splits name, produced by Filename for base and ext, into its
// entity component (empty when the name has none). ok is false when name does
// not have the Filename shape for base.
func ParseFilename(base, name, ext string) (entity string, ok bool) {
	rest, ok := strings.CutPrefix(name, slug(base)+"-")
	if !ok {
		return "", false
	}
	if rest, ok = strings.CutSuffix(rest, "."+ext); !ok {
		return "", false
	}
	segs := strings.Split(rest, "-")
	i := len(segs) - 1
	if i > 0 && isPart(segs[i]) && isTimestamp(segs[i-1]) {
		i--
	}
	if !isTimestamp(segs[i]) {
		return "", false
	}
	return strings.Join(segs[:i], "-"), true
}

// OwnedBy reports whether name is an artifact of export type base: it has the
// Filename shape and its entity component is absent, an entity label, or one
// of entities. Names of another export type that merely starts with base do
// not match.
func OwnedBy(base, name, ext string, entities []string) bool {
	entity, ok := ParseFilename(base, name, ext)
	if !ok {
		return false
	}
	if entity == "" {
		return true
	}
	for _, e := range schema.Entities() {
		if entity == slug(e.Label()) {
			return true
		}
	}
	for _, e := range entities {
		if strings.TrimSpace(e) != "" && entity == slug(e) {
			return true
		}
	}
	return false
}

func isTimestamp(s string) bool {
	_, err := time.Parse(TimestampLayout, s)
	return err == nil
}

func isPart(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && strconv.Itoa(n) == s
}

func slug(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '[', ']':
			return '-'
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "export"
	}
	return s
}
