package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"learnizone-backend/internal/models"
)

const maxResourceBytes = 25 * 1024 * 1024

// ResourceTextExtractor downloads a lesson resource and pulls its plain text
// out, so quizzes can be generated from PDFs and documents.
type ResourceTextExtractor struct {
	httpClient *http.Client
}

func NewResourceTextExtractor() *ResourceTextExtractor {
	return &ResourceTextExtractor{httpClient: &http.Client{Timeout: 60 * time.Second}}
}

func (s *ResourceTextExtractor) Extract(ctx context.Context, r models.LessonResource) (string, error) {
	if !r.IsDocument() && r.MimeType != "text/plain" {
		return "", fmt.Errorf("resource %s has no extractable text", r.ID)
	}

	data, err := s.download(ctx, r.URL)
	if err != nil {
		return "", err
	}
	return extractText(data, r.MimeType, r.URL)
}

func (s *ResourceTextExtractor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download resource: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download resource: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	if len(data) > maxResourceBytes {
		return nil, fmt.Errorf("resource exceeds %d MB limit", maxResourceBytes/(1024*1024))
	}
	return data, nil
}

// extractText picks a decoder from the MIME type, falling back to the URL's
// extension.
func extractText(data []byte, mimeType, name string) (string, error) {
	name = strings.ToLower(name)
	switch {
	case mimeType == "application/pdf" || strings.HasSuffix(name, ".pdf"):
		return extractPDF(data)
	case strings.Contains(mimeType, "wordprocessingml") || strings.HasSuffix(name, ".docx"):
		return extractDOCX(data)
	case mimeType == "text/plain" || strings.HasSuffix(name, ".txt"):
		text := normalizeExtractedText(string(data))
		if text == "" {
			return "", fmt.Errorf("text file is empty")
		}
		return text, nil
	}
	return "", fmt.Errorf("unsupported resource type for text extraction: %q", mimeType)
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text := normalizeExtractedText(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text found in pdf")
	}
	return text, nil
}

func extractDOCX(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var documentXML []byte
	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		documentXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		break
	}
	if len(documentXML) == 0 {
		return "", fmt.Errorf("docx document.xml not found")
	}

	text := normalizeExtractedText(stripDOCXML(documentXML))
	if text == "" {
		return "", fmt.Errorf("no extractable text found in docx")
	}
	return text, nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)

var xmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

func stripDOCXML(src []byte) string {
	s := string(src)

	// Paragraphs and breaks become newlines.
	s = strings.ReplaceAll(s, "</w:p>", "\n")
	s = strings.ReplaceAll(s, "<w:br/>", "\n")
	s = strings.ReplaceAll(s, "<w:br />", "\n")
	s = strings.ReplaceAll(s, "<w:tab/>", "\t")

	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntities.Replace(s)
}

// normalizeExtractedText trims lines and collapses runs of blank lines.
func normalizeExtractedText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var buf bytes.Buffer
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank++
			if blank == 1 {
				buf.WriteString("\n")
			}
			continue
		}
		blank = 0
		buf.WriteString(trimmed)
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String())
}
