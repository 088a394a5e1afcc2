package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lower-cased extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an extension the decoder accepts
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return true
	}
	return false
}

// GenerateOutputFilename builds <outputDir>/<prefix><name><suffix>.<format>.
// An empty format keeps the input extension.
func GenerateOutputFilename(inputFile, outputDir, prefix, suffix, format string) string {
	baseName := filepath.Base(inputFile)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "jpg"
		}
	}

	outputName := fmt.Sprintf("%s%s%s.%s", prefix, SanitizeFilename(nameWithoutExt), suffix, format)
	return filepath.Join(outputDir, outputName)
}

// OutputPaths maps each input under root to an output path below outputDir,
// mirroring its directory relative to root. Inputs that would still share a
// path (x.jpg and x.png) get their source extension folded into the name,
// and a counter as a last resort, so every result is distinct.
func OutputPaths(files []string, root, outputDir, suffix, format string) []string {
	target := func(file, extra string) string {
		dir := outputDir
		if rel, err := filepath.Rel(root, filepath.Dir(file)); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			dir = filepath.Join(outputDir, rel)
		}
		return GenerateOutputFilename(file, dir, "", extra+suffix, format)
	}

	paths := make([]string, len(files))
	count := make(map[string]int, len(files))
	for i, f := range files {
		paths[i] = target(f, "")
		count[paths[i]]++
	}

	used := make(map[string]bool, len(files))
	for i, f := range files {
		if count[paths[i]] > 1 {
			paths[i] = target(f, "_"+GetFileExtension(f))
		}
		base := paths[i]
		for n := 2; used[paths[i]]; n++ {
			ext := filepath.Ext(base)
			paths[i] = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		used[paths[i]] = true
	}
	return paths
}

// ListOptions controls which files ListImageFiles returns.
type ListOptions struct {
	Recursive bool

	// SkipDir is left out of the walk, typically the output directory when
	// it sits inside the input tree.
	SkipDir string

	// SkipSuffix drops files whose base name ends with it, so earlier
	// headshots are not cropped again.
	SkipSuffix string
}

// ListImageFiles lists image files in dir. Hidden files and directories are
// ignored. Paths come back sorted.
func ListImageFiles(dir string, opts ListOptions) ([]string, error) {
	if !DirExists(dir) {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	skip := ""
	if opts.SkipDir != "" {
		if abs, err := filepath.Abs(opts.SkipDir); err == nil {
			skip = abs
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			if !opts.Recursive || sameDir(path, skip) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsImageFile(path) {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if opts.SkipSuffix != "" && strings.HasSuffix(name, opts.SkipSuffix) {
			return nil
		}
		files = append(files, path)
		return nil
	})

	sort.Strings(files)
	return files, err
}

func sameDir(path, abs string) bool {
	if abs == "" {
		return false
	}
	p, err := filepath.Abs(path)
	return err == nil && p == abs
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	return err == nil && info.IsDir()
}

// SanitizeFilename replaces characters that are invalid in file names on
// common filesystems and trims leading/trailing spaces and dots.
func SanitizeFilename(filename string) string {
	result := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, filename)
	result = strings.Trim(result, " .")
	if result == "" {
		return "image"
	}
	return result
}

// FormatFileSize formats a byte count for the batch summary
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
