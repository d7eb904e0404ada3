package rag

import (
	"strings"
	"testing"

	"github.com/kindred-finance/kindred/internal/analyzer"
)

func TestEscalationMessages(t *testing.T) {
	tests := []struct {
		kind analyzer.Kind
		want string
	}{
		{analyzer.KindDanger, "National Suicide Prevention Lifeline at **988**"},
		{analyzer.KindAbuse, "National Domestic Violence Hotline at 1-800-799-7233"},
		{analyzer.KindSensitive, "Consumer Financial Protection Bureau at 1-855-411-2372"},
		{analyzer.Kind("UNKNOWN"), "911 for emergencies"},
	}
	for _, tt := range tests {
		if got := EscalationMessage(tt.kind); !strings.Contains(got, tt.want) {
			t.Errorf("EscalationMessage(%s) = %q, missing %q", tt.kind, got, tt.want)
		}
	}
}

func TestRedirectResponseWithQuestions(t *testing.T) {
	questions := []string{
		"How should I start saving for retirement?",
		"What is a good emergency fund size?",
	}
	got := RedirectResponse(questions)

	if !strings.Contains(got, "outside my wheelhouse") {
		t.Errorf("redirect header missing:\n%s", got)
	}
	if !strings.Contains(got, `**1.** "How should I start saving for retirement?"`) {
		t.Errorf("first question not listed:\n%s", got)
	}
	if !strings.Contains(got, `**2.** "What is a good emergency fund size?"`) {
		t.Errorf("second question not listed:\n%s", got)
	}
}

func TestRedirectResponseTruncatesLongQuestions(t *testing.T) {
	long := strings.Repeat("x", 150)
	got := RedirectResponse([]string{long})
	if strings.Contains(got, long) {
		t.Error("long question should be truncated")
	}
	if !strings.Contains(got, strings.Repeat("x", 100)+"...") {
		t.Error("truncated question missing ellipsis form")
	}
}

func TestRedirectResponseCapsAtThree(t *testing.T) {
	questions := []string{
		"How do I budget for a new baby?",
		"What insurance coverage do I actually need?",
		"Should I pay off debt before investing?",
		"How much house can I afford right now?",
	}
	got := RedirectResponse(questions)
	if strings.Contains(got, "new baby") {
		t.Error("oldest question should be dropped when more than three exist")
	}
	if !strings.Contains(got, "**3.**") || strings.Contains(got, "**4.**") {
		t.Errorf("redirect should list exactly three questions:\n%s", got)
	}
}

func TestRedirectResponseFallback(t *testing.T) {
	got := RedirectResponse(nil)
	if !strings.Contains(got, "financial and health empowerment") {
		t.Errorf("fallback redirect unexpected:\n%s", got)
	}
}
