package services

import (
	"context"
	"regexp"
	"strings"
)

var (
	reTOC          = regexp.MustCompile(`(?im)^.*(table of contents|mục lục).*$`)
	rePageNumber   = regexp.MustCompile(`(?im)^\s*(page|trang)\s*\d+.*$`)
	reSpecialLines = regexp.MustCompile(`(?m)^[\s\W\d]*$`)
	reCode         = regexp.MustCompile(`(?im)^.*(const |function |class |<[^>]+>).*$`)
	reMultiNewLine = regexp.MustCompile(`\n{2,}`)
)

// TextGenerator là LLM dạng prompt -> text (Groq, Gemini)
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// PreCleanText xử lý thô: loại mục lục, số trang, code, dòng rác
func PreCleanText(text string) string {
	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	cleaned = reTOC.ReplaceAllString(cleaned, "")
	cleaned = rePageNumber.ReplaceAllString(cleaned, "")
	cleaned = reSpecialLines.ReplaceAllString(cleaned, "")
	cleaned = reCode.ReplaceAllString(cleaned, "")
	cleaned = reMultiNewLine.ReplaceAllString(cleaned, "\n")
	return strings.TrimSpace(cleaned)
}

const sourceCleanPrompt = `You clean text extracted from a document so it can be used as factual source material for a short lesson.
- Remove tables of contents, page numbers, repeated headings, code and technical symbols.
- Keep the content; do not add or explain anything.
- Return plain text only, one fact or statement per line, no markdown.
Text:`

// CleanSourceText: regex trước, sau đó nhờ LLM (nếu có) làm sạch sâu.
// Trả về danh sách dòng nguồn đã chuẩn hoá.
func CleanSourceText(ctx context.Context, gen TextGenerator, raw string) ([]string, error) {
	text := PreCleanText(raw)
	if text == "" {
		return []string{}, nil
	}
	if gen != nil {
		out, err := gen.GenerateText(ctx, sourceCleanPrompt+"\n\n"+text)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(out) != "" {
			text = out
		}
	}
	return NormalizeSources(text), nil
}
