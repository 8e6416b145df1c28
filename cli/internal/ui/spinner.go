package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// LineSpinner animates a single stderr line in --plain mode, where no
// bubbletea program owns the terminal.
type LineSpinner struct {
	out   io.Writer
	style spinner.Spinner
	every time.Duration
	text  string

	quit chan struct{}
	once sync.Once
}

// NewConnectionSpinner spins a globe while the relay is dialed.
func NewConnectionSpinner(text string) *LineSpinner {
	return newLineSpinner(text, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner is shown to the host until a peer joins.
func NewWaitingSpinner(text string) *LineSpinner {
	return newLineSpinner(text, spinner.Points, 100*time.Millisecond)
}

func newLineSpinner(text string, style spinner.Spinner, every time.Duration) *LineSpinner {
	return &LineSpinner{out: os.Stderr, style: style, every: every, text: text, quit: make(chan struct{})}
}

func (s *LineSpinner) Start() {
	go s.spin()
}

func (s *LineSpinner) spin() {
	tick := time.NewTicker(s.every)
	defer tick.Stop()

	for n := 0; ; n++ {
		glyph := s.style.Frames[n%len(s.style.Frames)]
		fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(glyph), s.text)
		select {
		case <-tick.C:
		case <-s.quit:
			return
		}
	}
}

// Stop erases the spinner line. Later calls do nothing.
func (s *LineSpinner) Stop() {
	s.once.Do(func() {
		close(s.quit)
		fmt.Fprint(s.out, "\r\033[K")
	})
}

func (s *LineSpinner) Success(text string) {
	s.Stop()
	fmt.Fprintln(s.out, SuccessStyle.Render(IconSuccess), text)
}

func (s *LineSpinner) Error(text string) {
	s.Stop()
	fmt.Fprintln(s.out, ErrorStyle.Render(IconError), text)
}
