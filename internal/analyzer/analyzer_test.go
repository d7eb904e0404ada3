package analyzer

import "testing"

func TestDetectSensitive(t *testing.T) {
	a := New()

	tests := []struct {
		name      string
		query     string
		wantKind  Kind
		wantMatch bool
	}{
		{"danger keyword", "I want to end my life", KindDanger, true},
		{"danger case insensitive", "thinking about SUICIDE", KindDanger, true},
		{"abuse keyword", "my partner has beaten me", KindAbuse, true},
		{"sensitive keyword", "I'm facing bankruptcy", KindSensitive, true},
		{"sensitive phrase", "we can't pay the mortgage", KindSensitive, true},
		{"benign query", "how should I allocate my retirement portfolio", "", false},
		{"empty query", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, match := a.DetectSensitive(tt.query)
			if match != tt.wantMatch {
				t.Fatalf("DetectSensitive(%q) match = %v, want %v", tt.query, match, tt.wantMatch)
			}
			if kind != tt.wantKind {
				t.Errorf("DetectSensitive(%q) kind = %q, want %q", tt.query, kind, tt.wantKind)
			}
		})
	}
}

func TestDetectSensitivePriority(t *testing.T) {
	a := New()

	// A query matching both DANGER and ABUSE keywords must classify as DANGER.
	kind, match := a.DetectSensitive("the abuse makes me want to die")
	if !match {
		t.Fatal("expected a sensitive match")
	}
	if kind != KindDanger {
		t.Errorf("kind = %q, want %q", kind, KindDanger)
	}

	// ABUSE outranks SENSITIVE.
	kind, match = a.DetectSensitive("the violence caused a financial crisis")
	if !match {
		t.Fatal("expected a sensitive match")
	}
	if kind != KindAbuse {
		t.Errorf("kind = %q, want %q", kind, KindAbuse)
	}
}

func TestDetectSensitiveCustomKeywords(t *testing.T) {
	a := NewWithKeywords([]string{"red alert"}, nil, nil)

	if kind, match := a.DetectSensitive("this is a RED ALERT"); !match || kind != KindDanger {
		t.Errorf("custom keyword: got (%q, %v), want (DANGER, true)", kind, match)
	}
	// Defaults replaced for the overridden category only.
	if _, match := a.DetectSensitive("suicide"); match {
		t.Error("default danger keyword should not match after override")
	}
	// Untouched categories keep their defaults.
	if kind, match := a.DetectSensitive("bankruptcy filing"); !match || kind != KindSensitive {
		t.Errorf("default sensitive keyword: got (%q, %v), want (SENSITIVE, true)", kind, match)
	}
}

func TestNeedsClarification(t *testing.T) {
	a := New()

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"vague short how-do", "how do funds", true},
		{"very short", "budget help", true},
		{"single word", "stocks", true},
		{"context marker overrides vague", "tell me about bonds", false},
		{"first person overrides short", "my budget", false},
		{"long enough query", "how do exchange traded funds compare to mutual funds", false},
		{"specific marker", "specific bond", false},
		{"situation marker", "current situation summary", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.NeedsClarification(tt.query); got != tt.want {
				t.Errorf("NeedsClarification(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	a := New()

	got := a.Analyze("I want to harm myself")
	if !got.Sensitive || got.SensitivityKind != KindDanger {
		t.Errorf("Analyze sensitivity = (%v, %q), want (true, DANGER)", got.Sensitive, got.SensitivityKind)
	}
	if got.NeedsClarification {
		t.Error("sensitive query with context markers should not need clarification")
	}

	got = a.Analyze("how should budgets")
	if got.Sensitive {
		t.Error("benign query flagged sensitive")
	}
	if !got.NeedsClarification {
		t.Error("vague three word query should need clarification")
	}
}
