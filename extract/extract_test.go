package extract

import (
	"fmt"
	"testing"
)

func TestEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"send to ops@example.com now", "ops@example.com", true},
		{"cc alice.smith+dev@mail.example.co.uk please", "alice.smith+dev@mail.example.co.uk", true},
		{"two: a@x.io then b@y.io", "a@x.io", true},
		{"no address here", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Email(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Email(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEmail_RoundTrip(t *testing.T) {
	// Any string containing exactly one well-formed address yields that address.
	for i, addr := range []string{"a@b.co", "ops@example.com", "x_1@sub.domain.org"} {
		text := fmt.Sprintf("turn %d: please notify %s about the change", i, addr)
		got, ok := Email(text)
		if !ok || got != addr {
			t.Errorf("Email(%q) = (%q, %v), want (%q, true)", text, got, ok, addr)
		}
	}
}

func TestURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"call https://api.example.com/users.", "https://api.example.com/users", true},
		{"see http://example.com?a=1&b=2 for details", "http://example.com?a=1&b=2", true},
		{"ftp://example.com is not matched", "", false},
		{"no url", "", false},
	}
	for _, tc := range cases {
		got, ok := URL(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("URL(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPriority(t *testing.T) {
	if got, ok := Priority("this is URGENT, fix now"); !ok || got != "urgent" {
		t.Errorf("Priority = (%q, %v), want (urgent, true)", got, ok)
	}
	// "critical" appears before "high" in the vocabulary.
	if got, _ := Priority("critical and high"); got != "critical" {
		t.Errorf("Priority = %q, want critical", got)
	}
	// Whole-word match: "slow" must not match "low".
	if _, ok := Priority("the slow path"); ok {
		t.Error("Priority should not match substrings of other words")
	}
	if _, ok := Priority("nothing special"); ok {
		t.Error("Priority should report absent on no match")
	}
}

func TestPlatform(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		domain string
	}{
		{"post this on Twitter", "twitter", "social"},
		{"create a Jira ticket", "jira", "project"},
		{"set up a Zoom call", "zoom", "meeting"},
	}
	for _, tc := range cases {
		got, ok := Platform(tc.in)
		if !ok || got != tc.want {
			t.Errorf("Platform(%q) = (%q, %v), want (%q, true)", tc.in, got, ok, tc.want)
			continue
		}
		domain, ok := PlatformDomain(got)
		if !ok || domain != tc.domain {
			t.Errorf("PlatformDomain(%q) = (%q, %v), want (%q, true)", got, domain, ok, tc.domain)
		}
	}
	if _, ok := Platform("no platform named"); ok {
		t.Error("Platform should report absent on no match")
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"schedule a 30-minute call", "30-minute", true},
		{"a 2 hour meeting", "2 hour", true},
		{"45min standup", "45min", true},
		{"just a quick sync", "quick", true},
		{"sometime later", "", false},
	}
	for _, tc := range cases {
		got, ok := Duration(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Duration(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFileType(t *testing.T) {
	if got, ok := FileType("export the report as PDF"); !ok || got != "pdf" {
		t.Errorf("FileType = (%q, %v), want (pdf, true)", got, ok)
	}
	if _, ok := FileType("no format here"); ok {
		t.Error("FileType should report absent on no match")
	}
}

func TestAfter(t *testing.T) {
	cases := []struct {
		in      string
		anchors []string
		want    string
		ok      bool
	}{
		{"email them about the outage. thanks", []string{"about"}, "the outage", true},
		{"subject: Incident\nmore text", []string{"subject:"}, "Incident", true},
		{"send regarding onboarding", []string{"subject:", "regarding"}, "onboarding", true},
		{"nothing anchored", []string{"about"}, "", false},
		{"ends with anchor about", []string{"about"}, "", false},
	}
	for _, tc := range cases {
		got, ok := After(tc.in, tc.anchors...)
		if got != tc.want || ok != tc.ok {
			t.Errorf("After(%q, %v) = (%q, %v), want (%q, %v)", tc.in, tc.anchors, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAfter_AnchorPrecedence(t *testing.T) {
	// Anchor order controls precedence: subject: wins over about.
	got, ok := After("Send an email to ops@example.com about the outage, subject: Incident", "subject:", "about", "regarding")
	if !ok || got != "Incident" {
		t.Errorf("After = (%q, %v), want (Incident, true)", got, ok)
	}
}

func TestDeterminism(t *testing.T) {
	in := "urgent: post a PDF to https://x.io about launch with bob@x.io on twitter for 30 minutes"
	for i := 0; i < 3; i++ {
		if v, _ := Email(in); v != "bob@x.io" {
			t.Fatalf("Email unstable: %q", v)
		}
		if v, _ := URL(in); v != "https://x.io" {
			t.Fatalf("URL unstable: %q", v)
		}
		if v, _ := Priority(in); v != "urgent" {
			t.Fatalf("Priority unstable: %q", v)
		}
	}
}
