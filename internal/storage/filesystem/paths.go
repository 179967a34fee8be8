package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

const maxFilenameLength = 200

// sanitizeKey 将记录键转换为跨平台安全的文件名。
func sanitizeKey(key string) string {
	name := filepath.Base(strings.ReplaceAll(key, "\\", "/"))

	for _, char := range invalidChars() {
		name = strings.ReplaceAll(name, char, "_")
	}

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}

	name = strings.Trim(name, " .")
	if name == "" {
		return ""
	}
	return name + ".json"
}

// invalidChars 当前平台文件名中不允许的字符
func invalidChars() []string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return []string{"/", "\x00"}
	default:
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// validateBasePath 拒绝包含路径遍历的根目录。
func validateBasePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("base path is empty")
	}
	if len(path) > 2000 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", path)
		}
	}
	return nil
}

// normalizePath 转换为干净的绝对路径。
func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
