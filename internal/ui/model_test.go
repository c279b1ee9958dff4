package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/tonalstudy/internal/playback"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m model, msgs ...tea.Msg) model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

func reply(t *testing.T, req *request) string {
	t.Helper()
	select {
	case v := <-req.reply:
		return v
	default:
		t.Fatal("no reply")
		return ""
	}
}

// --- Model ---

func TestMessageDismissedByAnyKey(t *testing.T) {
	req := newRequest(kindMessage, "Fragment 1 of 10", nil)
	m := send(newModel("Study", "", nil), requestMsg{req: req})

	if !strings.Contains(m.View(), "Fragment 1 of 10") {
		t.Errorf("View = %q, want the message", m.View())
	}
	m = send(m, key("x"))
	reply(t, req)
	if m.req != nil {
		t.Error("request still pending after key press")
	}
}

func TestMessageDismissedByClick(t *testing.T) {
	req := newRequest(kindMessage, "hello", nil)
	m := send(newModel("", "", nil), requestMsg{req: req})
	m = send(m, tea.MouseMsg{Action: tea.MouseActionMotion})
	if m.req == nil {
		t.Fatal("mouse motion should not dismiss")
	}
	m = send(m,
		tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown},
		tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	if m.req == nil {
		t.Fatal("scrolling should not dismiss")
	}
	send(m, tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	reply(t, req)
}

func TestChoiceNavigation(t *testing.T) {
	req := newRequest(kindChoice, "Gender:", []string{"Woman", "Man", "Other"})
	m := send(newModel("", "", nil), requestMsg{req: req},
		key("down"), key("s"), key("up"))
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}
	if !strings.Contains(m.View(), "› Man") {
		t.Errorf("View does not highlight the cursor:\n%s", m.View())
	}
	send(m, key("enter"))
	if got := reply(t, req); got != "Man" {
		t.Errorf("reply = %q, want Man", got)
	}
}

func TestChoiceWrapsAround(t *testing.T) {
	req := newRequest(kindChoice, "Gender:", []string{"Woman", "Man", "Other"})
	m := send(newModel("", "", nil), requestMsg{req: req}, key("w"))
	if m.cursor != 2 {
		t.Errorf("up from the first option: cursor = %d, want 2", m.cursor)
	}
	m = send(m, key("down"))
	if m.cursor != 0 {
		t.Errorf("down from the last option: cursor = %d, want 0", m.cursor)
	}
}

func TestChoiceIgnoresOtherKeys(t *testing.T) {
	req := newRequest(kindChoice, "Music?", []string{"Yes", "No"})
	m := send(newModel("", "", nil), requestMsg{req: req}, key("x"), key("q"))
	if m.req == nil {
		t.Fatal("stray keys must not answer a choice")
	}
}

func TestTextInput(t *testing.T) {
	req := newRequest(kindText, "Age (years):", nil)
	m := send(newModel("", "", nil), requestMsg{req: req}, key("2"), key("7"), key(" "))
	if m.req == nil {
		t.Fatal("typing must not submit")
	}
	send(m, key("enter"))
	if got := reply(t, req); got != "27" {
		t.Errorf("reply = %q, want 27", got)
	}
}

func TestTextInputResetsBetweenQuestions(t *testing.T) {
	first := newRequest(kindText, "a", nil)
	second := newRequest(kindText, "b", nil)
	m := send(newModel("", "", nil), requestMsg{req: first}, key("x"), key("enter"), requestMsg{req: second}, key("enter"))
	reply(t, first)
	if got := reply(t, second); got != "" {
		t.Errorf("second answer = %q, want empty", got)
	}
	_ = m
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("esc"), {Type: tea.KeyCtrlC}} {
		quit := 0
		m := newModel("", "", func() { quit++ })
		m = send(m, requestMsg{req: newRequest(kindText, "x", nil)})
		_, cmd := m.Update(k)
		if quit != 1 {
			t.Errorf("%s: quit called %d times", k, quit)
		}
		if cmd == nil {
			t.Errorf("%s: expected tea.Quit", k)
		}
	}
}

func TestProgressView(t *testing.T) {
	m := send(newModel("", "Playing fragment {trial}/{total}", nil),
		progressMsg(playback.Progress{Index: 3, Total: 10, Elapsed: 75 * time.Second, Capturing: true}))
	v := m.View()
	for _, want := range []string{"Playing fragment 3/10", "01:15", "REC"} {
		if !strings.Contains(v, want) {
			t.Errorf("View missing %q:\n%s", want, v)
		}
	}
}

func TestRequestReplacesProgress(t *testing.T) {
	m := send(newModel("", "Playing", nil),
		progressMsg(playback.Progress{Index: 1, Total: 10}),
		requestMsg{req: newRequest(kindMessage, "Rate it", nil)})
	if m.prog != nil {
		t.Error("progress should be cleared by the next prompt")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{29*time.Second + 600*time.Millisecond, "00:30"},
		{30 * time.Second, "00:30"},
		{61 * time.Second, "01:01"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// --- Surface ---

func headless(t *testing.T) (*Surface, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := New("Study", "Playing {trial}/{total}", cancel, tea.WithInput(nil), tea.WithOutput(io.Discard))
	t.Cleanup(func() { s.Close() })
	return s, ctx
}

func TestSurfaceMessageRoundTrip(t *testing.T) {
	s, ctx := headless(t)

	done := make(chan error, 1)
	go func() { done <- s.ShowMessage(ctx, "Press any key") }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("ShowMessage: %v", err)
			}
			return
		case <-time.After(20 * time.Millisecond):
			s.prog.Send(key("a"))
		case <-deadline:
			t.Fatal("message never dismissed")
		}
	}
}

func TestSurfaceCancelledContext(t *testing.T) {
	s, _ := headless(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.TextInput(ctx, "Age:")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("prompt ignored cancellation")
	}
}

func TestSurfaceQuitCancelsSession(t *testing.T) {
	s, ctx := headless(t)
	s.prog.Send(key("esc"))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("quit key did not cancel the session")
	}
	if _, err := s.MultipleChoice(ctx, "x", []string{"a", "b"}); err == nil {
		t.Error("prompts after quit should fail")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after quit: %v", err)
	}
}
