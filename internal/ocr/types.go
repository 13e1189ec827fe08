package ocr

import (
	"encoding/base64"
	"errors"
)

// ErrNotConfigured is returned when the capability has no credential.
var ErrNotConfigured = errors.New("ocr service not configured")

// Config selects the OpenAI-compatible endpoints used for reading images and
// transcribing audio. Either half may be left empty.
type Config struct {
	VisionKey     string
	VisionBaseURL string
	VisionModel   string

	TranscribeKey     string
	TranscribeBaseURL string
	TranscribeModel   string
}

// PageImage is one rendered PDF page as a data URI.
type PageImage struct {
	PageNumber int
	DataURI    string
}

// ProgressFunc reports per-page progress while reading several images.
type ProgressFunc func(page, total int)

// DataURI encodes raw image bytes for a multimodal chat message.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

const textPrompt = "Extract all readable text from this image. Preserve the reading order and line breaks. Return only the extracted text, without commentary."
