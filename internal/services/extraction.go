package services

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"flash-study/internal/logger"
	"flash-study/internal/models"
	"flash-study/internal/ocr"
)

// ErrUnsupportedFile is returned for file types that cannot be turned into text.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ErrNoText means extraction succeeded but found nothing to study.
var ErrNoText = errors.New("no text could be extracted")

var kindsByExt = map[string]models.SourceKind{
	".txt":  models.SourceText,
	".md":   models.SourceText,
	".pdf":  models.SourcePDF,
	".docx": models.SourceWord,
	".png":  models.SourceImage,
	".jpg":  models.SourceImage,
	".jpeg": models.SourceImage,
	".webp": models.SourceImage,
	".gif":  models.SourceImage,
	".mp3":  models.SourceAudio,
	".wav":  models.SourceAudio,
	".m4a":  models.SourceAudio,
	".ogg":  models.SourceAudio,
	".webm": models.SourceAudio,
}

// KindFor classifies an upload by its file extension.
func KindFor(filename string) (models.SourceKind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if kind, ok := kindsByExt[ext]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(filename))
}

// ExtractionService turns stored study material into plain text.
type ExtractionService struct {
	ocr *ocr.Service
	log *logger.Logger
}

func NewExtractionService(ocrService *ocr.Service, log *logger.Logger) *ExtractionService {
	if log == nil {
		log = logger.Nop()
	}
	return &ExtractionService{ocr: ocrService, log: log.With("service", "ExtractionService")}
}

// Extract reads the document at path according to kind.
func (s *ExtractionService) Extract(ctx context.Context, path string, kind models.SourceKind) (string, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case models.SourceText:
		var raw []byte
		raw, err = os.ReadFile(path)
		text = string(raw)
	case models.SourcePDF:
		text, err = s.extractPDF(ctx, path)
	case models.SourceWord:
		text, err = extractDocx(path)
	case models.SourceImage:
		text, err = s.extractImage(ctx, path)
	case models.SourceAudio:
		if s.ocr == nil {
			return "", fmt.Errorf("transcribe audio: %w", ocr.ErrNotConfigured)
		}
		text, err = s.ocr.Transcribe(ctx, path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, kind)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", kind, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// extractPDF reads the text layer and falls back to page OCR for scans.
func (s *ExtractionService) extractPDF(ctx context.Context, path string) (string, error) {
	text, err := pdfPlainText(path)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" || s.ocr == nil || !s.ocr.CanReadImages() {
		return text, nil
	}

	s.log.Info("pdf has no text layer, falling back to page ocr", "path", path)
	pages, err := ocr.RenderPDF(ctx, path)
	if err != nil {
		return "", err
	}
	uris := make([]string, len(pages))
	for i, page := range pages {
		uris[i] = page.DataURI
	}
	return s.ocr.ReadImages(ctx, uris, nil)
}

func pdfPlainText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}

func (s *ExtractionService) extractImage(ctx context.Context, path string) (string, error) {
	if s.ocr == nil {
		return "", ocr.ErrNotConfigured
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return s.ocr.ReadImage(ctx, ocr.DataURI(mimeType, data))
}

// extractDocx collects the text runs of word/document.xml, one line per paragraph.
func extractDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", ErrUnsupportedFile)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
