// Package ui is the participant's screen: a full-terminal bubbletea program
// that shows messages, asks questions and renders playback progress.
package ui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/tonalstudy/internal/playback"
)

// ErrClosed is returned by prompts once the program has exited.
var ErrClosed = errors.New("surface closed")

// Surface runs the bubbletea program on its own goroutine. The session
// controller talks to it through Program.Send and per-request reply
// channels; Esc or Ctrl+C cancels the session.
type Surface struct {
	prog *tea.Program
	done chan struct{}

	mu     sync.Mutex
	runErr error
	once   sync.Once
}

// New starts the program. quit is called when the participant or operator
// asks to stop, and again when the program exits for any reason.
func New(title, playing string, quit context.CancelFunc, opts ...tea.ProgramOption) *Surface {
	m := newModel(title, playing, quit)
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)
	s := &Surface{prog: tea.NewProgram(m, opts...), done: make(chan struct{})}
	go func() {
		_, err := s.prog.Run()
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
		close(s.done)
		quit()
	}()
	return s
}

func (s *Surface) ShowMessage(ctx context.Context, text string) error {
	_, err := s.ask(ctx, newRequest(kindMessage, text, nil))
	return err
}

func (s *Surface) TextInput(ctx context.Context, prompt string) (string, error) {
	return s.ask(ctx, newRequest(kindText, prompt, nil))
}

func (s *Surface) MultipleChoice(ctx context.Context, prompt string, options []string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("multiple choice needs options")
	}
	return s.ask(ctx, newRequest(kindChoice, prompt, options))
}

// Progress updates the playback screen.
func (s *Surface) Progress(p playback.Progress) {
	select {
	case <-s.done:
	default:
		s.prog.Send(progressMsg(p))
	}
}

// Close stops the program and restores the terminal.
func (s *Surface) Close() error {
	s.once.Do(func() {
		s.prog.Quit()
		<-s.done
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil && !errors.Is(s.runErr, tea.ErrProgramKilled) {
		return s.runErr
	}
	return nil
}

func (s *Surface) ask(ctx context.Context, req *request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-s.done:
		return "", ErrClosed
	default:
	}
	s.prog.Send(requestMsg{req: req})
	select {
	case v := <-req.reply:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}
