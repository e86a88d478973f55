package room

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wricardo/sprint-planning-client/protocol"
)

// Console prints room updates, one line each.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

var _ protocol.Presenter = (*Console)(nil)

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) RoomSize(size int) {
	c.printf("%d players in the room\n", size)
}

func (c *Console) DrawnSize(size int) {
	c.printf("%d cards drawn\n", size)
}

func (c *Console) CardSet(cards []json.RawMessage) {
	values := make([]string, len(cards))
	for i, raw := range cards {
		values[i] = cardText(raw)
	}
	c.printf("cards revealed: %s\n", strings.Join(values, " "))
}

func (c *Console) Reset() {
	c.printf("new round\n")
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}
