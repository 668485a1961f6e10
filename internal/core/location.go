package core

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"runtime"
	"strings"
)

// SourceLocation identifies where an assertion occurred.
//
// FileID is the package-qualified file name (for example
// "snapattach/internal/core/location.go"); FilePath is the absolute path
// reported by the compiler.
type SourceLocation struct {
	FileID   string
	FilePath string
	Line     uint
	Column   uint
}

// Validate checks that the location names a file.
func (l SourceLocation) Validate() error {
	if l.FileID == "" && l.FilePath == "" {
		return errors.New("fileID or filePath is required")
	}
	return nil
}

func (l SourceLocation) String() string {
	file := l.FileID
	if file == "" {
		file = l.FilePath
	}
	if l.Column == 0 {
		return fmt.Sprintf("%s:%d", file, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// Caller captures the location of the function skip frames above Caller's
// caller. Caller(0) is the line that called Caller.
//
// The Go runtime does not expose columns, so Column is always 0.
func Caller(skip int) SourceLocation {
	pcs := make([]uintptr, 1)
	if runtime.Callers(skip+2, pcs) == 0 {
		return SourceLocation{FileID: "unknown", FilePath: "unknown"}
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	return SourceLocation{
		FileID:   fileID(frame.Function, frame.File),
		FilePath: frame.File,
		Line:     uint(frame.Line),
	}
}

// fileID joins the package path of fn with the base name of file.
func fileID(fn, file string) string {
	base := path.Base(file)
	if fn == "" {
		return base
	}
	// fn is "import/path/pkg.Func" or "import/path/pkg.(*T).Method". The
	// runtime escapes dots in the last path element as %2e.
	lastSlash := strings.LastIndex(fn, "/")
	rest := fn[lastSlash+1:]
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return base
	}
	elem := rest[:dot]
	// Unescaped names are ambiguous; trust the directory the file lives in.
	dir := path.Base(path.Dir(file))
	if at := strings.Index(dir, "@"); at >= 0 {
		dir = dir[:at]
	}
	if strings.HasPrefix(dir, elem+".") && strings.HasPrefix(rest, dir+".") {
		elem = dir
	}
	pkg := fn[:lastSlash+1] + elem
	if u, err := url.PathUnescape(pkg); err == nil {
		pkg = u
	}
	return pkg + "/" + base
}
