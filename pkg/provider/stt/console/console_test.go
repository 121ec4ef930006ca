package console

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/maxassist/pkg/provider/stt"
)

func TestProvider_LinesBecomeFinalResults(t *testing.T) {
	t.Parallel()

	p := New(strings.NewReader("hey max\n\n   \nwhat time is it\n"))
	s, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	var got []stt.Result
	for r := range s.Results() {
		got = append(got, r)
	}
	want := []string{"hey max", "what time is it"}
	if len(got) != len(want) {
		t.Fatalf("results = %+v, want %v", got, want)
	}
	for i, r := range got {
		if r.Transcript != want[i] || r.Confidence != 1.0 || !r.IsFinal {
			t.Errorf("result[%d] = %+v", i, r)
		}
	}
	if !stt.IsFatal(s.Err()) {
		t.Errorf("Err() after EOF = %v, want fatal source-closed", s.Err())
	}

	// Once exhausted, later streams end immediately.
	s2, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	for range s2.Results() {
	}
	if !stt.IsFatal(s2.Err()) {
		t.Errorf("second stream Err() = %v", s2.Err())
	}
}

func TestProvider_CloseStopsStream(t *testing.T) {
	t.Parallel()

	p := New(strings.NewReader("one\ntwo\nthree\n"))
	s, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	first := <-s.Results()
	if first.Transcript != "one" {
		t.Fatalf("first = %q", first.Transcript)
	}
	_ = s.Close()
	_ = s.Close()

	// A line may still race through the closing stream; whatever it does not
	// deliver is picked up by the next one.
	var rest []string
	for r := range s.Results() {
		rest = append(rest, r.Transcript)
	}
	if s.Err() != nil {
		t.Errorf("closed stream should end without error, got %v", s.Err())
	}
	s2, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	for r := range s2.Results() {
		rest = append(rest, r.Transcript)
	}
	if len(rest) == 0 || rest[len(rest)-1] != "three" {
		t.Errorf("remaining lines = %v", rest)
	}
}
