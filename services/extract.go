package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxSourceBytes giới hạn dung lượng một file nguồn
const MaxSourceBytes = 20 << 20

var (
	ErrSourceTooLarge = errors.New("source file is too large")
	ErrEmptySource    = errors.New("source file has no readable text")
)

// readUpload đọc toàn bộ file upload, cắt ở MaxSourceBytes
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh == nil {
		return nil, errors.New("missing file")
	}
	if fh.Size > MaxSourceBytes {
		return nil, ErrSourceTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxSourceBytes {
		return nil, ErrSourceTooLarge
	}
	return data, nil
}

// extractPDFText lấy plain text từng trang; trang lỗi thì bỏ qua
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf reader: %w", err)
	}
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out.WriteString(content)
		out.WriteByte('\n')
	}
	return nonEmptyText(out.String())
}

// .docx là file zip; mỗi đoạn <w:p> thành một dòng, chữ nằm trong <w:t>
func extractDOCXText(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var out strings.Builder
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local != "t" {
				continue
			}
			var text string
			if err := dec.DecodeElement(&text, &el); err == nil {
				out.WriteString(text)
				out.WriteByte(' ')
			}
		case xml.EndElement:
			if el.Name.Local == "p" {
				out.WriteByte('\n')
			}
		}
	}
	return nonEmptyText(out.String())
}

func extractTXTText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text file is not valid UTF-8")
	}
	return nonEmptyText(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
}

func nonEmptyText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptySource
	}
	return s, nil
}
