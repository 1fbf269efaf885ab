package mcp

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		val      int
		min      int
		max      int
		expected int
	}{
		{"value in range", 5, 1, 10, 5},
		{"value below min", -3, 1, 10, 1},
		{"value above max", 15, 1, 10, 10},
		{"value equals min", 1, 1, 10, 1},
		{"value equals max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clamp(tt.val, tt.min, tt.max)
			if got != tt.expected {
				t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.expected)
			}
		})
	}
}

func TestBoolPtr(t *testing.T) {
	truePtr := boolPtr(true)
	if truePtr == nil {
		t.Fatal("boolPtr(true) returned nil")
	}
	if *truePtr != true {
		t.Errorf("*boolPtr(true) = %v, want true", *truePtr)
	}

	falsePtr := boolPtr(false)
	if falsePtr == nil {
		t.Fatal("boolPtr(false) returned nil")
	}
	if *falsePtr != false {
		t.Errorf("*boolPtr(false) = %v, want false", *falsePtr)
	}

	// Verify they are distinct pointers
	if truePtr == falsePtr {
		t.Error("boolPtr(true) and boolPtr(false) should return distinct pointers")
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()

	if ann.ReadOnlyHint == nil {
		t.Fatal("ReadOnlyHint should not be nil for readOnlyAnnotation")
	}
	if *ann.ReadOnlyHint != true {
		t.Errorf("ReadOnlyHint = %v, want true", *ann.ReadOnlyHint)
	}
}

func TestMutatingAnnotation(t *testing.T) {
	ann := mutatingAnnotation()

	if ann.ReadOnlyHint == nil {
		t.Fatal("ReadOnlyHint should not be nil for mutatingAnnotation")
	}
	if *ann.ReadOnlyHint != false {
		t.Errorf("ReadOnlyHint = %v, want false", *ann.ReadOnlyHint)
	}
}

func ndjsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCollectStreamCompletion(t *testing.T) {
	resp := ndjsonResponse(
		`{"model":"llama3","response":"Hello, ","done":false}` + "\n" +
			"\n" +
			`{"model":"llama3","response":"world","done":false}` + "\n" +
			`{"model":"llama3","response":"!","done":true,"prompt_eval_count":9,"eval_count":4}` + "\n",
	)

	text, stats, err := collectStream(resp, "response")
	if err != nil {
		t.Fatalf("collectStream: %v", err)
	}
	if text != "Hello, world!" {
		t.Errorf("text = %q", text)
	}
	if stats.PromptEvalCount != 9 || stats.EvalCount != 4 || !stats.Done {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollectStreamChat(t *testing.T) {
	resp := ndjsonResponse(
		`{"model":"llama3","message":{"role":"assistant","content":"hi "},"done":false}` + "\n" +
			`{"model":"llama3","message":{"role":"assistant","content":"there"},"done":true,"prompt_eval_count":5,"eval_count":2}` + "\n",
	)

	text, stats, err := collectStream(resp, "chat")
	if err != nil {
		t.Fatalf("collectStream: %v", err)
	}
	if text != "hi there" {
		t.Errorf("text = %q", text)
	}
	if stats.PromptEvalCount != 5 || stats.EvalCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCollectStreamSkipsMalformedLines(t *testing.T) {
	resp := ndjsonResponse(
		`not json at all` + "\n" +
			`{"response":"ok","done":true,"eval_count":1}` + "\n",
	)

	text, stats, err := collectStream(resp, "response")
	if err != nil {
		t.Fatalf("collectStream: %v", err)
	}
	if text != "ok" || stats.EvalCount != 1 {
		t.Errorf("text = %q, stats = %+v", text, stats)
	}
}
