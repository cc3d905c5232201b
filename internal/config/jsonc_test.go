package config

import (
	"encoding/json"
	"testing"
)

func TestStripJSONComments_LineComments(t *testing.T) {
	input := `{
  // This is a comment
  "key": "value" // trailing comment
}`
	var parsed map[string]interface{}
	if err := json.Unmarshal(StripJSONComments([]byte(input)), &parsed); err != nil {
		t.Fatalf("stripped output is not valid JSON: %v", err)
	}
	if parsed["key"] != "value" {
		t.Errorf("key = %v, want value", parsed["key"])
	}
}

func TestStripJSONComments_BlockComments(t *testing.T) {
	input := `{
  /* block
     comment */
  "key": 42
}`
	var parsed map[string]interface{}
	if err := json.Unmarshal(StripJSONComments([]byte(input)), &parsed); err != nil {
		t.Fatalf("stripped output is not valid JSON: %v", err)
	}
	if parsed["key"].(float64) != 42 {
		t.Errorf("key = %v, want 42", parsed["key"])
	}
}

func TestStripJSONComments_SlashesInStrings(t *testing.T) {
	input := `{"url": "http://example.com/path", "note": "a /* not a comment */"}`
	var parsed map[string]interface{}
	if err := json.Unmarshal(StripJSONComments([]byte(input)), &parsed); err != nil {
		t.Fatalf("stripped output is not valid JSON: %v", err)
	}
	if parsed["url"] != "http://example.com/path" {
		t.Errorf("url = %v, slashes inside strings must survive", parsed["url"])
	}
	if parsed["note"] != "a /* not a comment */" {
		t.Errorf("note = %v, comment markers inside strings must survive", parsed["note"])
	}
}

func TestStripJSONComments_EscapedQuotes(t *testing.T) {
	input := `{"key": "he said \"hi\" // still in string"}`
	var parsed map[string]interface{}
	if err := json.Unmarshal(StripJSONComments([]byte(input)), &parsed); err != nil {
		t.Fatalf("stripped output is not valid JSON: %v", err)
	}
	if parsed["key"] != `he said "hi" // still in string` {
		t.Errorf("key = %v, escaped quotes must not end the string", parsed["key"])
	}
}
