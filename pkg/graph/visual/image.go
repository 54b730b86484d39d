package visual

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davidthor/scdctl/pkg/graph"
)

// ImageFormats are the formats mmdc can write.
var ImageFormats = []string{"png", "svg", "pdf"}

// FormatFromPath returns the image format implied by a file extension, or ""
// when the extension is not an image format.
func FormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, f := range ImageFormats {
		if ext == f {
			return f
		}
	}
	return ""
}

// RenderImage renders the catalog graph as an image through mermaid-cli
// (mmdc), which must be on $PATH:
//
//	npm install -g @mermaid-js/mermaid-cli
func RenderImage(ctx context.Context, g *graph.Graph, opts ImageOptions) ([]byte, error) {
	text, err := RenderMermaid(g, opts.MermaidOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to generate mermaid diagram: %w", err)
	}
	return RenderMermaidToImage(ctx, text, opts)
}

// RenderMermaidToImage converts Mermaid text into an image. The diagram is
// passed to mmdc on stdin; mmdc only writes images to files, so the result is
// read back from a temporary directory.
func RenderMermaidToImage(ctx context.Context, text string, opts ImageOptions) ([]byte, error) {
	format := opts.Format
	if format == "" {
		format = "png"
	}
	if !contains(ImageFormats, format) {
		return nil, fmt.Errorf("unsupported image format %q (expected one of %s)", format, strings.Join(ImageFormats, ", "))
	}

	mmdc, err := exec.LookPath("mmdc")
	if err != nil {
		return nil, fmt.Errorf("mermaid-cli (mmdc) not found on $PATH; install it with " +
			"`npm install -g @mermaid-js/mermaid-cli` or use --format mermaid and paste the output into mermaid.live")
	}

	dir, err := os.MkdirTemp("", "scdctl-graph-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "graph."+format)
	cmd := exec.CommandContext(ctx, mmdc, mmdcArgs(out, format, opts)...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mmdc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered image: %w", err)
	}
	return data, nil
}

func mmdcArgs(out, format string, opts ImageOptions) []string {
	theme := opts.Theme
	if theme == "" {
		theme = "default"
	}
	args := []string{"--input", "-", "--output", out, "--outputFormat", format, "--theme", theme}
	if opts.Background != "" {
		args = append(args, "--backgroundColor", opts.Background)
	}
	if opts.Width > 0 {
		args = append(args, "--width", strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		args = append(args, "--height", strconv.Itoa(opts.Height))
	}
	return args
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
