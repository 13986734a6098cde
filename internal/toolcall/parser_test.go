package toolcall

import (
	"testing"
)

func TestParseTextFencedToolCalls(t *testing.T) {
	t.Parallel()

	text := "```json\n{\"tool_calls\":[{\"tool\":\"container_logs\",\"arguments\":{\"container\":\"web\",\"tail\":50}}]}\n```"
	calls := ParseText(text)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Tool != "container_logs" {
		t.Errorf("tool = %q", calls[0].Tool)
	}
	if calls[0].Arguments["container"] != "web" {
		t.Errorf("arguments = %+v", calls[0].Arguments)
	}
}

func TestParseTextBareObjectWithNameKey(t *testing.T) {
	t.Parallel()

	text := `{"tool_calls":[{"name":"list_containers","arguments":{}}]}`
	calls := ParseText(text)
	if len(calls) != 1 || calls[0].Tool != "list_containers" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestParseTextStringEncodedArguments(t *testing.T) {
	t.Parallel()

	text := `{"tool_calls":[{"tool":"container_metrics","arguments":"{\"container\":\"db\"}"}]}`
	calls := ParseText(text)
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Arguments["container"] != "db" {
		t.Errorf("arguments = %+v", calls[0].Arguments)
	}
}

func TestParseTextProseReturnsNil(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
	}{
		{"plain prose", "The web container restarted twice last hour."},
		{"prose mentioning the term", `The model uses a "tool_calls" array to request tools.`},
		{"empty", ""},
		{"truncated json", `{"tool_calls":[{"tool":"x"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if calls := ParseText(tc.text); calls != nil {
				t.Errorf("ParseText(%q) = %+v, want nil", tc.text, calls)
			}
		})
	}
}

func TestLooksLikeFailedToolAttempt(t *testing.T) {
	t.Parallel()

	known := func(name string) bool { return name == "list_containers" }

	cases := []struct {
		name string
		text string
		want bool
	}{
		{"unparseable tool shape", `{"tool_calls":[{"tool":`, true},
		{"all tools unknown", `{"tool_calls":[{"tool":"nonexistent","arguments":{}}]}`, true},
		{"one known tool", `{"tool_calls":[{"tool":"list_containers","arguments":{}}]}`, false},
		{"ordinary prose", "nothing to see here", false},
		{"prose mentioning term", `the "tool_calls" field is documented upstream`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := LooksLikeFailedToolAttempt(tc.text, known); got != tc.want {
				t.Errorf("LooksLikeFailedToolAttempt(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestNormalizeCoercesArguments(t *testing.T) {
	t.Parallel()

	raw := []RawCall{
		{Tool: "a", Arguments: map[string]any{"k": "v"}},
		{Tool: "b", Arguments: `{"n":1}`},
		{Tool: "c", Arguments: "not json"},
		{Tool: "d", Arguments: nil},
	}
	calls := Normalize(raw)
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	if calls[0].Arguments["k"] != "v" {
		t.Errorf("map args lost: %+v", calls[0].Arguments)
	}
	if calls[1].Arguments["n"] != float64(1) {
		t.Errorf("string args not decoded: %+v", calls[1].Arguments)
	}
	for _, i := range []int{2, 3} {
		if calls[i].Arguments == nil || len(calls[i].Arguments) != 0 {
			t.Errorf("call %d should degrade to empty map, got %+v", i, calls[i].Arguments)
		}
	}
}
