package view

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/park285/cheese-lichess/internal/board"
	"github.com/park285/cheese-lichess/internal/msgcat"
)

// Console is a line-oriented terminal front end. Output from the stream
// goroutine and the prompt is serialized so lines never interleave.
type Console struct {
	out  io.Writer
	msgs *msgcat.Catalog

	mu sync.Mutex

	in       *bufio.Scanner
	readOnce sync.Once
	lines    chan string
	readErr  error
}

func NewConsole(in io.Reader, out io.Writer, msgs *msgcat.Catalog) *Console {
	return &Console{
		out:   out,
		msgs:  msgs,
		in:    bufio.NewScanner(in),
		lines: make(chan string),
	}
}

func (c *Console) ShowMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}

func (c *Console) RenderBoard(snap board.Snapshot, bottom board.Color) {
	var b strings.Builder
	b.WriteString(snap.Diagram(bottom))
	for _, line := range SummaryLines(snap, c.msgs) {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, b.String())
}

// PromptMove prints the prompt and waits for one line. A cancelled ctx
// abandons the wait; a line typed afterwards goes to the next prompt.
func (c *Console) PromptMove(ctx context.Context) (string, error) {
	c.readOnce.Do(func() { go c.readLoop() })

	c.mu.Lock()
	fmt.Fprint(c.out, c.msgs.Text("play.prompt", nil))
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.ShowMessage("")
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) readLoop() {
	defer close(c.lines)
	for c.in.Scan() {
		c.lines <- c.in.Text()
	}
	c.readErr = c.in.Err()
}
