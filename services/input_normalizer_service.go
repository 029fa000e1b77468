package services

import (
	"errors"
	"mime/multipart"
)

type InputType string

const (
	InputText InputType = "text"
	InputTXT  InputType = "txt"
	InputDOCX InputType = "docx"
	InputPDF  InputType = "pdf"
)

var ErrUnsupportedInput = errors.New("unsupported input type")

// InputSource là nguồn tài liệu người dùng gửi lên
type InputSource struct {
	Type       InputType
	FileHeader *multipart.FileHeader
	Text       string
}

// NormalizeInput đưa mọi loại input về plain text
func NormalizeInput(input InputSource) (string, error) {
	if input.Type == InputText {
		return nonEmptyText(input.Text)
	}
	var extract func([]byte) (string, error)
	switch input.Type {
	case InputTXT:
		extract = extractTXTText
	case InputPDF:
		extract = extractPDFText
	case InputDOCX:
		extract = extractDOCXText
	default:
		return "", ErrUnsupportedInput
	}
	data, err := readUpload(input.FileHeader)
	if err != nil {
		return "", err
	}
	return extract(data)
}
