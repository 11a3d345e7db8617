package benefits

import (
	"testing"
	"time"
)

func TestInForce(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)
	yesterday := now.AddDate(0, 0, -1)
	cases := []struct {
		name  string
		state State
		start time.Time
		end   *time.Time
		want  bool
	}{
		{"active starting tomorrow", StateActive, tomorrow, nil, false},
		{"active started today", StateActive, now, nil, true},
		{"active ended yesterday", StateActive, yesterday.AddDate(0, 0, -5), &yesterday, false},
		{"active ends today", StateActive, yesterday, &now, true},
		{"suspended", StateSuspended, yesterday, nil, false},
		{"revoked", StateRevoked, yesterday, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InForce(tc.state, tc.start, tc.end, now); got != tc.want {
				t.Fatalf("InForce: want=%v got=%v", tc.want, got)
			}
		})
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	if got := DaysRemaining(nil, now); got != nil {
		t.Fatalf("open ended: want=nil got=%d", *got)
	}
	end := time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC)
	if got := DaysRemaining(&end, now); got == nil || *got != 10 {
		t.Fatalf("ten days: got=%v", got)
	}
	past := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	if got := DaysRemaining(&past, now); got == nil || *got != 0 {
		t.Fatalf("past end: got=%v", got)
	}
}
