package tradingview

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Wire format: every logical message is wrapped as ~m~<len>~m~<json> where
// <len> is the byte length of the json segment. Heartbeats use a ~h~<n>
// body inside the same wrapper. Multiple frames arrive concatenated per
// network read.

const (
	frameMarker     = "~m~"
	heartbeatMarker = "~h~"
)

var (
	framePattern     = regexp.MustCompile(`~m~\d+~m~`)
	heartbeatPattern = regexp.MustCompile(`~h~(\d+)`)
)

// Message is a decoded protocol message.
type Message struct {
	Method string            `json:"m"`
	Params []json.RawMessage `json:"p"`
}

// EncodeFrame serializes a method call into the length-prefixed wire format.
func EncodeFrame(method string, params []interface{}) (string, error) {
	payload, err := json.Marshal(struct {
		Method string        `json:"m"`
		Params []interface{} `json:"p"`
	}{Method: method, Params: params})
	if err != nil {
		return "", fmt.Errorf("encode frame %s: %w", method, err)
	}
	return wrapFrame(string(payload)), nil
}

// wrapFrame prefixes body with the frame marker and its byte length.
func wrapFrame(body string) string {
	return fmt.Sprintf("%s%d%s%s", frameMarker, len(body), frameMarker, body)
}

// DecodeFrames splits a raw chunk into protocol messages. Empty fragments,
// heartbeat bodies, and fragments that fail to parse are skipped so a
// malformed or partial frame never aborts the read loop.
func DecodeFrames(raw string) []Message {
	var messages []Message
	for _, part := range framePattern.Split(raw, -1) {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, heartbeatMarker) {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(part), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// HeartbeatReplies extracts every inbound heartbeat token from raw and
// returns the echo frames to send back, in arrival order. A chunk may carry
// several heartbeats between data frames; each one expects its own echo.
func HeartbeatReplies(raw string) []string {
	matches := heartbeatPattern.FindAllStringSubmatch(raw, -1)
	if matches == nil {
		return nil
	}
	replies := make([]string, 0, len(matches))
	for _, m := range matches {
		replies = append(replies, wrapFrame(heartbeatMarker+m[1]))
	}
	return replies
}
