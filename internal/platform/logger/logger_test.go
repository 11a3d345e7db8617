package logger

import "testing"

func TestRedactorScrubsSecretsAndHashesSubjects(t *testing.T) {
	r := redactor{enabled: true, salt: "s"}
	out := r.apply([]interface{}{"authorization", "Bearer abc", "subject_id", "S1", "state", "ACTIVE"})
	if len(out) != 6 {
		t.Fatalf("kv length: want=6 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("authorization: want=[REDACTED] got=%v", out[1])
	}
	hashed, ok := out[3].(string)
	if !ok || hashed == "S1" || len(hashed) != len("hash:")+12 {
		t.Fatalf("subject_id: want hashed value got=%v", out[3])
	}
	if out[5] != "ACTIVE" {
		t.Fatalf("state: want=ACTIVE got=%v", out[5])
	}
}

func TestRedactorDisabledPassesThrough(t *testing.T) {
	r := redactor{}
	in := []interface{}{"token", "t"}
	out := r.apply(in)
	if out[1] != "t" {
		t.Fatalf("disabled redactor changed value: got=%v", out[1])
	}
}

func TestRedactorKeepsOddTrailingKey(t *testing.T) {
	r := redactor{enabled: true}
	out := r.apply([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", out)
	}
}
