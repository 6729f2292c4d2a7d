package ipc

import (
	"bufio"
	"encoding/json"
	"io"
	"net"

	"github.com/relaydev/clauder/internal/permission"
)

// maxLineBytes bounds a single wire line. Tool inputs can carry whole
// file contents, so the limit is well above typical payloads.
const maxLineBytes = 1 << 20

// request is the wire form of a permission query.
type request struct {
	Action string          `json:"action"`
	Input  map[string]any  `json:"input"`
	Risk   permission.Risk `json:"risk,omitempty"`
}

// response is the wire form of a decision. Only the outcome and an
// optional reason cross the socket; scope and source stay host-side.
type response struct {
	Outcome permission.Outcome `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
}

// writeLine marshals v and writes it as a single newline-terminated line.
func writeLine(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

// readLine reads one line from conn and unmarshals it into v. A closed
// connection with no data reads as io.EOF.
func readLine(conn net.Conn, v any) error {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	return json.Unmarshal(sc.Bytes(), v)
}
