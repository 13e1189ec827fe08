package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ledongthuc/pdf"
)

// RenderPDF rasterises every page of a PDF with Ghostscript so scanned
// documents without a text layer can go through image OCR.
func RenderPDF(ctx context.Context, path string) ([]PageImage, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf for page count: %w", err)
	}
	numPages := r.NumPage()
	f.Close()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	tempDir, err := os.MkdirTemp("", "pdf-render-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// 150 DPI, 24-bit PNG, one file per page.
	cmd := exec.CommandContext(ctx, "gs",
		"-dQUIET",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=png16m",
		"-r150",
		"-sOutputFile="+filepath.Join(tempDir, "page-%03d.png"),
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ghostscript render failed: %w, stderr: %s", err, stderr.String())
	}

	pages := make([]PageImage, 0, numPages)
	for page := 1; page <= numPages; page++ {
		data, err := os.ReadFile(filepath.Join(tempDir, fmt.Sprintf("page-%03d.png", page)))
		if err != nil {
			return nil, fmt.Errorf("read rendered page %d: %w", page, err)
		}
		pages = append(pages, PageImage{PageNumber: page, DataURI: DataURI("image/png", data)})
	}
	return pages, nil
}
