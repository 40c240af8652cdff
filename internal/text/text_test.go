package text

import (
	"strings"
	"testing"
)

func TestToRichText(t *testing.T) {
	transform := NewMarkdownHTML()

	html, err := transform.ToRichText("It **rattles** badly.")
	if err != nil {
		t.Fatalf("ToRichText: %v", err)
	}
	if !strings.Contains(html, "<strong>rattles</strong>") {
		t.Errorf("html = %q", html)
	}

	empty, err := transform.ToRichText("")
	if err != nil || empty != "" {
		t.Errorf("ToRichText(empty) = %q, %v", empty, err)
	}
}

func TestToPlainMarkup(t *testing.T) {
	transform := NewMarkdownHTML()

	md, err := transform.ToPlainMarkup("<p>It <strong>rattles</strong> badly.</p>")
	if err != nil {
		t.Fatalf("ToPlainMarkup: %v", err)
	}
	if !strings.Contains(md, "**rattles**") {
		t.Errorf("markdown = %q", md)
	}
}

// The reverse direction is lossy by contract; what matters for the engine's
// equality guard is that converting the same markdown twice is stable.
func TestReverseIsStable(t *testing.T) {
	transform := NewMarkdownHTML()
	source := "Steps:\n\n1. shake it\n2. listen"

	html, err := transform.ToRichText(source)
	if err != nil {
		t.Fatal(err)
	}
	first, err := transform.ToPlainMarkup(html)
	if err != nil {
		t.Fatal(err)
	}
	second, err := transform.ToPlainMarkup(html)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("conversion unstable: %q vs %q", first, second)
	}
}
