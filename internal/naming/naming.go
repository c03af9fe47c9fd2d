// Package naming derives storage keys and display filenames for uploads.
//
// Keys always have the form <YYYYMMDD>/<generated segment>. The segment is built by
// the engine; client filenames are reduced to their last path element first so a key
// can never escape its date shard.
package naming

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"picmark/gallery/internal/domain"

	"github.com/google/uuid"
)

const fallbackName = "file"

// Result is the naming output handed to the credential issuer and back to the client.
type Result struct {
	StorageKey      string `json:"key"`
	DisplayFilename string `json:"filename"`
}

// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	now func() time.Time
}

// New returns an engine reading the wall clock.
func New() *Engine {
	return &Engine{now: time.Now}
}

// NewWithClock returns an engine with a fixed time source.
func NewWithClock(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Derive builds the storage key and display filename for originalFilename.
// Unknown strategies fall back to timestamp naming and unknown format conversions
// keep the original extension.
func (e *Engine) Derive(originalFilename string, strategy domain.NamingStrategy, formatConversion string) Result {
	name := sanitize(originalFilename)
	if ext, ok := conversionExt(formatConversion); ok {
		name = replaceExt(name, ext)
	}

	t := e.now().UTC()
	shard := DateShard(t)
	ext := strings.ToLower(path.Ext(name))

	var display, segment string
	switch domain.ParseNamingStrategy(string(strategy)) {
	case domain.NamingOriginal:
		// The millisecond prefix separates same-named uploads without touching the visible name.
		display = name
		segment = strconv.FormatInt(t.UnixMilli(), 10) + "_" + name
	case domain.NamingUUID:
		display = strings.ReplaceAll(uuid.NewString(), "-", "") + ext
		segment = display
	default:
		display = fmt.Sprintf("%s_%s_%03d%s", shard, t.Format("150405"), t.Nanosecond()/int(time.Millisecond), ext)
		segment = display
	}

	return Result{
		StorageKey:      shard + "/" + segment,
		DisplayFilename: display,
	}
}

// DateShard formats t as the YYYYMMDD key prefix.
func DateShard(t time.Time) string {
	return t.Format("20060102")
}

// ValidKey reports whether key has the shape Derive produces: a YYYYMMDD date shard
// and one plain filename segment.
func ValidKey(key string) bool {
	shard, name, ok := strings.Cut(key, "/")
	if !ok || len(shard) != len("20060102") || name == "" {
		return false
	}
	if _, err := time.Parse("20060102", shard); err != nil {
		return false
	}
	return !strings.Contains(name, "/") && name != "." && name != ".." && sanitize(name) == name
}

func conversionExt(format string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "webp":
		return ".webp", true
	case "jpeg", "jpg":
		return ".jpg", true
	case "png":
		return ".png", true
	default:
		return "", false
	}
}

// replaceExt swaps the extension of name, whatever its case; a name without one gains ext.
func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

func sanitize(filename string) string {
	name := strings.ReplaceAll(filename, `\`, "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	switch name {
	case "", ".", "..", "/":
		return fallbackName
	}
	return name
}
