package pgpool

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeJSONStatWithoutTrailingNewline(t *testing.T) {
	data, err := EncodeJSON(Stat{Capacity: 4, Idle: 3, Leased: 1})
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	out := string(data)
	if strings.HasSuffix(out, "\n") {
		t.Errorf("expected no trailing newline: %q", out)
	}
	if !strings.Contains(out, `"capacity":4`) || !strings.Contains(out, `"leased":1`) {
		t.Errorf("unexpected encoding: %s", out)
	}
}

func TestWriteJSONDoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]string{"q": "a <> b"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), "a <> b") {
		t.Errorf("expected unescaped output, got %s", buf.String())
	}
}
