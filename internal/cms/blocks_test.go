package cms

import (
	"encoding/json"
	"testing"
)

func TestContentBlock_DecodesKnownKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"video", `{"kind":"video","video":{"url":"https://cdn/x.mp4","duration_seconds":90}}`},
		{"text", `{"kind":"text","text":{"html":"<p>hi</p>"}}`},
		{"image", `{"kind":"image","image":{"url":"https://cdn/x.png"}}`},
		{"audio", `{"kind":"audio","audio":{"url":"https://cdn/x.mp3","duration_seconds":30}}`},
		{"slideshow", `{"kind":"slideshow","slideshow":{"slides":[{"url":"https://cdn/1.png"}]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var b ContentBlock
			if err := json.Unmarshal([]byte(tc.raw), &b); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(b.Kind) != tc.name {
				t.Fatalf("expected kind %q got %q", tc.name, b.Kind)
			}
		})
	}
}

func TestContentBlock_RejectsUnknownKind(t *testing.T) {
	var b ContentBlock
	err := json.Unmarshal([]byte(`{"kind":"hologram","hologram":{}}`), &b)
	if err == nil {
		t.Fatalf("expected decode error for unknown kind")
	}
}

func TestContentBlock_RejectsMissingPayload(t *testing.T) {
	var b ContentBlock
	err := json.Unmarshal([]byte(`{"kind":"video"}`), &b)
	if err == nil {
		t.Fatalf("expected decode error for kind without payload")
	}
}

func TestTimingFromSeconds_CollapsesZeroAndNegative(t *testing.T) {
	for _, secs := range []int{0, -1, -100} {
		timing := TimingFromSeconds(secs)
		if timing.Timed() || timing.Seconds() != 0 {
			t.Fatalf("expected %d seconds to normalize untimed", secs)
		}
	}
	timing := TimingFromSeconds(45)
	if !timing.Timed() || timing.Seconds() != 45 {
		t.Fatalf("expected timed 45s, got timed=%v secs=%d", timing.Timed(), timing.Seconds())
	}
}
