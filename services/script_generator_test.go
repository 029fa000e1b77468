package services

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScriptJSON(t *testing.T) map[string]interface{} {
	t.Helper()
	units := make([]interface{}, 5)
	for i := range units {
		units[i] = map[string]interface{}{
			"index":  float64(i + 1),
			"title":  fmt.Sprintf("Unit %d", i+1),
			"script": "Narration text.",
			"quiz": map[string]interface{}{
				"question":     "What?",
				"options":      []interface{}{"a", "b", "c", "d"},
				"correctIndex": float64(2),
				"explanation":  "Because.",
			},
		}
	}
	return map[string]interface{}{
		"topic":      "Tides",
		"difficulty": "Hard",
		"sources":    []interface{}{" a ", ""},
		"units":      units,
	}
}

func marshal(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestParseThreadScriptValid(t *testing.T) {
	raw := marshal(t, validScriptJSON(t))

	script, err := ParseThreadScript(raw, ScriptRequest{Topic: "Tides"})
	require.NoError(t, err)
	assert.Equal(t, "Tides", script.Topic)
	assert.Equal(t, "hard", script.Difficulty)
	assert.Equal(t, []string{"a"}, script.Sources)
	require.Len(t, script.Units, 5)
	assert.Equal(t, 2, script.Units[0].Quiz.CorrectIndex)
	assert.Len(t, script.Units[4].Quiz.Options, 4)
}

func TestParseThreadScriptExtractsOuterObject(t *testing.T) {
	raw := "Here is your thread:\n" + marshal(t, validScriptJSON(t)) + "\nEnjoy!"
	_, err := ParseThreadScript(raw, ScriptRequest{})
	assert.NoError(t, err)

	fenced := "```json\n" + marshal(t, validScriptJSON(t)) + "\n```"
	_, err = ParseThreadScript(fenced, ScriptRequest{})
	assert.NoError(t, err)
}

func TestParseThreadScriptNotJSON(t *testing.T) {
	_, err := ParseThreadScript("**Unit 1** something", ScriptRequest{})
	var verr *ScriptValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, verr.Issues)
	assert.Equal(t, "model did not return valid JSON", verr.Error())
}

func TestValidateThreadScriptEnumeratesIssues(t *testing.T) {
	obj := validScriptJSON(t)
	units := obj["units"].([]interface{})
	u3 := units[2].(map[string]interface{})
	u3["quiz"].(map[string]interface{})["correctIndex"] = float64(4)
	u4 := units[3].(map[string]interface{})
	u4["index"] = float64(7)
	u4["quiz"].(map[string]interface{})["options"] = []interface{}{"a", "b", "c"}
	u5 := units[4].(map[string]interface{})
	delete(u5, "quiz")
	delete(obj, "sources")

	issues := ValidateThreadScript(obj)
	assert.ElementsMatch(t, []string{
		"Missing/invalid: sources (must be array of strings)",
		"Unit 3: quiz.correctIndex must be 0..3",
		"Unit 4: index must be 4",
		"Unit 4: quiz.options must be array of 4 strings",
		"Unit 5: missing quiz object",
	}, issues)
}

func TestValidateThreadScriptWrongUnitCount(t *testing.T) {
	obj := validScriptJSON(t)
	obj["units"] = obj["units"].([]interface{})[:4]
	issues := ValidateThreadScript(obj)
	assert.Contains(t, issues, "Missing/invalid: units (must be length 5)")

	assert.Contains(t, ValidateThreadScript([]interface{}{}), "Top-level must be an object.")
}

func TestValidateThreadScriptRejectsFractionalCorrectIndex(t *testing.T) {
	obj := validScriptJSON(t)
	obj["units"].([]interface{})[0].(map[string]interface{})["quiz"].(map[string]interface{})["correctIndex"] = 1.5
	assert.Equal(t, []string{"Unit 1: quiz.correctIndex must be 0..3"}, ValidateThreadScript(obj))
}

func TestNormalizeDifficultyAndSources(t *testing.T) {
	assert.Equal(t, "easy", NormalizeDifficulty(" EASY "))
	assert.Equal(t, "medium", NormalizeDifficulty("impossible"))
	assert.Equal(t, "medium", NormalizeDifficulty(""))

	assert.Equal(t, []string{"a", "b"}, NormalizeSources("a\r\n\n b "))
	assert.Equal(t, []string{"x", "y"}, NormalizeSources([]interface{}{"x", " ", "y"}))
	assert.Equal(t, []string{}, NormalizeSources(nil))
}

func TestScriptUserPromptListsSources(t *testing.T) {
	p := scriptUserPrompt(ScriptRequest{Topic: "Tides", Difficulty: "x", Sources: []string{"s1", "s2"}})
	assert.Contains(t, p, "Topic: Tides")
	assert.Contains(t, p, "Difficulty: medium")
	assert.Contains(t, p, "s1\ns2")

	p = scriptUserPrompt(ScriptRequest{Topic: "Tides"})
	assert.Contains(t, p, "Sources:\nNone")
}
