package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/vnkhanh/edu-reels-backend/models"
)

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

type ScriptQuiz struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
}

type ScriptUnit struct {
	Index  int        `json:"index"`
	Title  string     `json:"title"`
	Script string     `json:"script"`
	Quiz   ScriptQuiz `json:"quiz"`
}

// ThreadScript là kết quả LLM đã qua kiểm tra schema
type ThreadScript struct {
	Topic      string       `json:"topic"`
	Difficulty string       `json:"difficulty"`
	Sources    []string     `json:"sources"`
	Units      []ScriptUnit `json:"units"`
}

type ScriptRequest struct {
	Topic      string
	Difficulty string
	Sources    []string
}

type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (*ThreadScript, error)
}

// ScriptValidationError: model trả về JSON hỏng hoặc sai schema
type ScriptValidationError struct {
	Issues []string
	Raw    string
}

func (e *ScriptValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "model did not return valid JSON"
	}
	return "model returned JSON, but it did not match the expected schema: " + strings.Join(e.Issues, "; ")
}

func NormalizeDifficulty(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if difficulties[d] {
		return d
	}
	return "medium"
}

// NormalizeSources nhận mảng chuỗi hoặc một chuỗi nhiều dòng
func NormalizeSources(in interface{}) []string {
	var parts []string
	switch v := in.(type) {
	case nil:
		return []string{}
	case []string:
		parts = v
	case []interface{}:
		for _, x := range v {
			parts = append(parts, fmt.Sprint(x))
		}
	case string:
		parts = strings.Split(strings.ReplaceAll(v, "\r\n", "\n"), "\n")
	default:
		parts = strings.Split(fmt.Sprint(v), "\n")
	}
	out := []string{}
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseThreadScript đọc output của model: thử parse trực tiếp, sau đó lấy khối {...} ngoài cùng
func ParseThreadScript(content string, req ScriptRequest) (*ThreadScript, error) {
	obj, ok := safeParseJSON(content)
	if !ok {
		return nil, &ScriptValidationError{Raw: content}
	}
	if issues := ValidateThreadScript(obj); len(issues) > 0 {
		return nil, &ScriptValidationError{Issues: issues, Raw: content}
	}

	m := obj.(map[string]interface{})
	raw, err := json.Marshal(m["units"])
	if err != nil {
		return nil, err
	}
	var units []ScriptUnit
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, &ScriptValidationError{Issues: []string{err.Error()}, Raw: content}
	}

	script := &ThreadScript{
		Topic:      strings.TrimSpace(m["topic"].(string)),
		Difficulty: NormalizeDifficulty(m["difficulty"].(string)),
		Sources:    NormalizeSources(m["sources"]),
		Units:      units,
	}
	if script.Topic == "" {
		script.Topic = req.Topic
	}
	return script, nil
}

func safeParseJSON(text string) (interface{}, bool) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, false
	}
	var out interface{}
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, true
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		if err := json.Unmarshal([]byte(text[first:last+1]), &out); err == nil {
			return out, true
		}
	}
	return nil, false
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ValidateThreadScript liệt kê mọi chỗ sai schema (5 unit, 4 option, correctIndex 0..3)
func ValidateThreadScript(obj interface{}) []string {
	var issues []string
	m, ok := obj.(map[string]interface{})
	if !ok {
		issues = append(issues, "Top-level must be an object.")
		m = map[string]interface{}{}
	}

	if s, _ := m["topic"].(string); strings.TrimSpace(s) == "" {
		issues = append(issues, "Missing/invalid: topic")
	}
	if s, _ := m["difficulty"].(string); !difficulties[strings.ToLower(strings.TrimSpace(s))] {
		issues = append(issues, "Missing/invalid: difficulty")
	}
	if _, ok := m["sources"].([]interface{}); !ok {
		issues = append(issues, "Missing/invalid: sources (must be array of strings)")
	}
	units, ok := m["units"].([]interface{})
	if !ok || len(units) != models.UnitsPerThread {
		issues = append(issues, fmt.Sprintf("Missing/invalid: units (must be length %d)", models.UnitsPerThread))
	}

	for i, raw := range units {
		n := i + 1
		u, ok := raw.(map[string]interface{})
		if !ok {
			issues = append(issues, fmt.Sprintf("Unit %d: must be object", n))
			u = map[string]interface{}{}
		}
		if idx, ok := u["index"].(float64); !ok || idx != float64(n) {
			issues = append(issues, fmt.Sprintf("Unit %d: index must be %d", n, n))
		}
		if !nonEmptyString(u["title"]) {
			issues = append(issues, fmt.Sprintf("Unit %d: missing title", n))
		}
		if !nonEmptyString(u["script"]) {
			issues = append(issues, fmt.Sprintf("Unit %d: missing script", n))
		}

		q, ok := u["quiz"].(map[string]interface{})
		if !ok {
			issues = append(issues, fmt.Sprintf("Unit %d: missing quiz object", n))
			continue
		}
		if !nonEmptyString(q["question"]) {
			issues = append(issues, fmt.Sprintf("Unit %d: missing quiz.question", n))
		}
		if !fourStrings(q["options"]) {
			issues = append(issues, fmt.Sprintf("Unit %d: quiz.options must be array of 4 strings", n))
		}
		if ci, ok := q["correctIndex"].(float64); !ok || ci < 0 || ci > 3 || ci != math.Trunc(ci) {
			issues = append(issues, fmt.Sprintf("Unit %d: quiz.correctIndex must be 0..3", n))
		}
		if !nonEmptyString(q["explanation"]) {
			issues = append(issues, fmt.Sprintf("Unit %d: missing quiz.explanation", n))
		}
	}
	return issues
}

func nonEmptyString(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func fourStrings(v interface{}) bool {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != models.OptionsPerQuiz {
		return false
	}
	for _, x := range arr {
		if _, ok := x.(string); !ok {
			return false
		}
	}
	return true
}

func scriptSystemPrompt() string {
	return `You are an academic instructional designer generating a structured micro-learning thread.

CRITICAL OUTPUT RULES:
- Return ONLY valid JSON.
- No markdown, no headings, no bullet lists, no code fences, no extra commentary, no asterisks.
- Output must be a single JSON object matching the schema exactly.

SCHEMA (must match exactly):
{
  "topic": string,
  "difficulty": "easy"|"medium"|"hard",
  "sources": string[],
  "units": [
    {
      "index": 1..5,
      "title": string,
      "script": string,
      "quiz": {
        "question": string,
        "options": [string, string, string, string],
        "correctIndex": 0..3,
        "explanation": string
      }
    }
  ]
}

GLOBAL REQUIREMENTS:
- Generate exactly 5 units, each one distinct conceptual idea.
- Progression: 1) Context / Background 2) Core Mechanisms or Causes 3) Major Impacts or Developments 4) Concrete Example or Case Study 5) Synthesis / Concept Reinforcement.
- Do not repeat the same facts across units.

SCRIPT REQUIREMENTS:
- Written for spoken narration, about 60 seconds when spoken.
- Target 130-170 words (minimum 120, maximum 180).
- No rhetorical questions, filler, repetition, or tangents.

QUIZ REQUIREMENTS (per unit):
- Exactly 1 question, answerable directly from the script.
- 4 options as an array of 4 strings, exactly one correct answer (correctIndex 0..3).
- A concise standalone explanation of the correct concept.

SOURCE ENFORCEMENT:
- If sources are provided, do not introduce facts they do not support and do not invent numbers or dates.
- If no sources are provided, keep claims conservative.`
}

func scriptUserPrompt(req ScriptRequest) string {
	src := "None"
	if len(req.Sources) > 0 {
		src = strings.Join(req.Sources, "\n")
	}
	return fmt.Sprintf(`Generate a micro-learning thread for:

Topic: %s
Difficulty: %s
Sources:
%s

Return JSON only, matching the schema exactly.`, req.Topic, NormalizeDifficulty(req.Difficulty), src)
}
