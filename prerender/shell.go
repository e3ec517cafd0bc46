package prerender

import (
	"context"
	"fmt"
	"io/fs"
	"os"
)

// ShellRenderer returns the same SPA shell for every route. The shell is
// read once, so the run may overwrite the file it came from.
type ShellRenderer struct {
	html string
}

// NewShellRenderer loads the shell from file. When file does not exist the
// fallback is read from fallbackFS instead.
func NewShellRenderer(file string, fallbackFS fs.FS, fallbackName string) (*ShellRenderer, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) && fallbackFS != nil {
		data, err = fs.ReadFile(fallbackFS, fallbackName)
	}
	if err != nil {
		return nil, fmt.Errorf("load shell: %w", err)
	}
	return &ShellRenderer{html: string(data)}, nil
}

// NewShellRendererFromString uses html as the shell.
func NewShellRendererFromString(html string) *ShellRenderer {
	return &ShellRenderer{html: html}
}

// Render implements Renderer.
func (s *ShellRenderer) Render(ctx context.Context, path string) (string, error) {
	return s.html, ctx.Err()
}
