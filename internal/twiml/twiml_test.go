package twiml

import (
	"strings"
	"testing"
)

func TestRenderEmpty(t *testing.T) {
	doc := Render()
	if !strings.Contains(doc, "<Response></Response>") {
		t.Errorf("empty render should produce an empty Response element, got %q", doc)
	}
	if !strings.HasPrefix(doc, "<?xml") {
		t.Errorf("rendered document should carry the XML header, got %q", doc)
	}
}

func TestRenderSegments(t *testing.T) {
	doc := Render("first part", "second part")
	if got := strings.Count(doc, "<Message>"); got != 2 {
		t.Errorf("expected 2 Message elements, got %d in %q", got, doc)
	}
	if !strings.Contains(doc, "<Message>first part</Message>") {
		t.Errorf("missing first segment in %q", doc)
	}
}

func TestRenderReplyEmptyBody(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\t"} {
		doc := RenderReply(body)
		if strings.Contains(doc, "<Message>") {
			t.Errorf("RenderReply(%q) should render no Message elements, got %q", body, doc)
		}
	}
}

func TestRenderReplyEscapesXML(t *testing.T) {
	doc := RenderReply("pricing < 100 & fast")
	if strings.Contains(doc, "< 100 &") {
		t.Errorf("reply body was not XML-escaped: %q", doc)
	}
	if !strings.Contains(doc, "&lt;") || !strings.Contains(doc, "&amp;") {
		t.Errorf("expected escaped entities in %q", doc)
	}
}

func TestSplitShortText(t *testing.T) {
	segments := Split("hello world", DefaultSegmentWidth)
	if len(segments) != 1 || segments[0] != "hello world" {
		t.Errorf("Split() = %v, want single unchanged segment", segments)
	}
}

func TestSplitLongText(t *testing.T) {
	word := "segment"
	var b strings.Builder
	for b.Len() < 620 {
		b.WriteString(word)
		b.WriteByte(' ')
	}
	text := strings.TrimSpace(b.String())

	segments := Split(text, DefaultSegmentWidth)
	if len(segments) < 2 {
		t.Fatalf("expected 620-char text to split into multiple segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if len(seg) > DefaultSegmentWidth {
			t.Errorf("segment %d exceeds width: %d chars", i, len(seg))
		}
	}
	if rejoined := strings.Join(segments, " "); rejoined != text {
		t.Errorf("rejoined segments differ from original text")
	}
}

func TestSplitWordBoundaries(t *testing.T) {
	segments := Split("alpha beta gamma delta", 11)
	want := []string{"alpha beta", "gamma delta"}
	if len(segments) != len(want) {
		t.Fatalf("Split() = %v, want %v", segments, want)
	}
	for i := range want {
		if segments[i] != want[i] {
			t.Errorf("segment %d = %q, want %q", i, segments[i], want[i])
		}
	}
}

func TestSplitOversizedWord(t *testing.T) {
	long := strings.Repeat("x", 50)
	segments := Split("short "+long+" tail", 10)
	found := false
	for _, seg := range segments {
		if seg == long {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized word should be kept whole in its own segment, got %v", segments)
	}
}

func TestSplitEmpty(t *testing.T) {
	if segments := Split("   ", 10); segments != nil {
		t.Errorf("Split of whitespace-only text = %v, want nil", segments)
	}
}

func TestPersonalize(t *testing.T) {
	body := "Hi {{NAME}}, thoughts? - {{AGENT_NAME}}"
	got := PersonalizeAgent(PersonalizeName(body, "Marie"), "Sarah")
	want := "Hi Marie, thoughts? - Sarah"
	if got != want {
		t.Errorf("personalized body = %q, want %q", got, want)
	}
}
