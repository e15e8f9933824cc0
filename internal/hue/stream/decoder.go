package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dokzlo13/roomlight/internal/hue"
)

const (
	dataPrefix = "data: "

	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 1024 * 1024
)

// Batch is the flattened list of event records carried by one payload.
type Batch []hue.Event

// Decoder reads event batches from one stream connection.
// It is not restartable: once Next returns an error, every later call
// returns the same error.
type Decoder struct {
	scanner *bufio.Scanner
	pending string
	err     error
}

// NewDecoder creates a decoder over a raw event stream body.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)
	return &Decoder{scanner: scanner}
}

// Next blocks until the next non-empty batch is available.
// It returns io.EOF when the server ends the stream. A payload that is
// not valid JSON terminates the sequence with an hue.ErrDecode error.
// A trailing payload without its terminating empty line is dropped.
func (d *Decoder) Next() (Batch, error) {
	if d.err != nil {
		return nil, d.err
	}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		switch {
		case strings.HasPrefix(line, dataPrefix):
			d.pending = strings.TrimPrefix(line, dataPrefix)

		case line == "":
			// Empty line marks end of event
			if d.pending == "" {
				continue
			}
			payload := d.pending
			d.pending = ""

			batch, err := decodePayload(payload)
			if err != nil {
				d.err = err
				return nil, err
			}
			if len(batch) > 0 {
				return batch, nil
			}
		}
		// Anything else (": hi" greeting, "id: ..." lines) is ignored
	}

	if err := d.scanner.Err(); err != nil {
		d.err = fmt.Errorf("%w: event stream read: %v", hue.ErrBridgeUnavailable, err)
		return nil, d.err
	}

	d.err = io.EOF
	return nil, io.EOF
}

func decodePayload(payload string) (Batch, error) {
	var messages []hue.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return nil, fmt.Errorf("%w: event payload: %v", hue.ErrDecode, err)
	}

	var batch Batch
	for _, msg := range messages {
		batch = append(batch, msg.Data...)
	}
	return batch, nil
}
