package chat

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// imageMimeTypes maps file extensions to the MIME types the vision-capable
// adapters accept as inline image parts.
var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// supportedMimeTypes is the allowlist a MessagePartTypeFile/ImageURL part
// may carry; anything else is rejected before it reaches a provider.
var supportedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// textFileExtensions is the allowlist DetectMimeType/IsTextFile treat as
// plain text regardless of extension, since most source/config formats
// don't have a registered MIME type worth distinguishing for inlining.
var textFileExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".json": true, ".csv": true,
	".go": true, ".py": true, ".ts": true, ".tsx": true, ".rs": true, ".java": true,
	".yaml": true, ".yml": true, ".toml": true, ".html": true, ".css": true,
	".sh": true, ".sql": true, ".xml": true, ".org": true,
	".cpp": true, ".h": true, ".ex": true, ".hs": true, ".swift": true, ".kt": true,
	".dart": true, ".zig": true, ".graphql": true, ".diff": true, ".svg": true,
	".gitignore": true, ".mk": true, ".dockerfile": true,
}

// DetectMimeType guesses a MIME type from a file's extension: known image
// extensions map to their image/* type, the text-file allowlist and any
// other unknown extension falls back to text/plain (since most of what a
// RAG index chunks is source code with no registered MIME type), and
// everything else is treated as opaque binary.
func DetectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := imageMimeTypes[ext]; ok {
		return mt
	}
	if ext == ".pdf" {
		return "application/pdf"
	}
	if textFileExtensions[ext] || looksLikeKnownTextName(path) {
		return "text/plain"
	}
	return "application/octet-stream"
}

func looksLikeKnownTextName(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return base == "makefile" || base == "dockerfile" || base == ".gitignore"
}

// IsSupportedMimeType reports whether a MIME type may be sent inline to a
// provider as an image or file part.
func IsSupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[mimeType]
}

// IsTextFile reports whether path should be treated as text: either its
// extension is on the known-text allowlist, or (for unknown extensions) a
// byte-sniff of its first 512 bytes finds no NUL byte. A nonexistent or
// unreadable file is reported as not text, since it can't be inlined
// either way; an empty file is treated as text.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textFileExtensions[ext] || looksLikeKnownTextName(path) {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return true // empty file
	}
	return !bytes.Contains(buf[:n], []byte{0})
}

// ReadFileForInline reads a text file and wraps it in an <attached_file>
// tag so it can be spliced into a user message's Content, matching the
// format the Context Assembler uses for retrieved chunks.
func ReadFileForInline(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s for inline attachment: %w", path, err)
	}
	return fmt.Sprintf("<attached_file path=%q>\n%s\n</attached_file>", path, string(data)), nil
}
