package scanning

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// DefaultMaxFileSize is the largest file submitted for scanning.
const DefaultMaxFileSize int64 = 100 << 20

// DefaultExtensions lists the file types submitted for scanning.
var DefaultExtensions = []string{
	"exe", "dll", "bat", "cmd", "scr", "pif", "com",
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
	"zip", "rar", "7z", "tar", "gz",
	"js", "py", "php", "pl", "sh",
	"jpg", "jpeg", "png", "gif", "bmp",
}

// Config controls which files a scan submits and how fast.
type Config struct {
	// PacingDelay separates successive submissions within one job.
	PacingDelay time.Duration
	// MaxFileSize is checked before hashing; larger files are skipped.
	MaxFileSize int64
	// Extensions is the allow-list, compared case-insensitively without the dot.
	Extensions []string
	// ExcludeDirs are never descended into. The quarantine directory belongs
	// here so a scan never resubmits files it already isolated.
	ExcludeDirs []string
	Policy      verdict.QuarantinePolicy
}

// DefaultConfig returns a one-second pacing, 100 MiB ceiling configuration.
func DefaultConfig() Config {
	return Config{
		PacingDelay: time.Second,
		MaxFileSize: DefaultMaxFileSize,
		Extensions:  DefaultExtensions,
		Policy:      verdict.DefaultQuarantinePolicy(),
	}
}

type extensionSet map[string]struct{}

func newExtensionSet(exts []string) extensionSet {
	set := make(extensionSet, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

type dirSet map[string]struct{}

// newDirSet keys directories by cleaned absolute path. Entries that cannot be
// made absolute are dropped.
func newDirSet(dirs []string) dirSet {
	set := make(dirSet, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		set[filepath.Clean(abs)] = struct{}{}
	}
	return set
}

func (s dirSet) contains(path string) bool {
	if len(s) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, ok := s[filepath.Clean(abs)]
	return ok
}

func (s extensionSet) allows(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return false
	}
	_, ok := s[strings.ToLower(ext)]
	return ok
}
