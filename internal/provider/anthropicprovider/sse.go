package anthropicprovider

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseEvent is one named SSE frame: an "event:" line plus its "data:" payload.
// Anthropic's stream, unlike the OpenAI-compatible one, names every frame,
// so the reader here tracks both lines instead of only "data:".
type sseEvent struct {
	name string
	data string
}

// readSSEEvent reads one event/data frame, extending the sibling
// OpenAI-compatible reader's line-accumulation approach with an event name.
func readSSEEvent(reader *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	var data strings.Builder
	sawAny := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if sawAny {
				ev.data = strings.TrimSuffix(data.String(), "\n")
				return ev, nil
			}
			if errors.Is(err, io.EOF) {
				return sseEvent{}, io.EOF
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			sawAny = true
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			data.WriteByte('\n')
			sawAny = true
		}

		if errors.Is(err, io.EOF) {
			if !sawAny {
				return sseEvent{}, io.EOF
			}
			ev.data = strings.TrimSuffix(data.String(), "\n")
			return ev, nil
		}
	}
}
