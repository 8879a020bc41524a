// Package transcript reads conversation transcripts (JSON lines) to recover
// the most recent exchange when a hook didn't see it directly.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const maxLine = 1 << 20

// Turn is one user prompt and the assistant text that followed it.
type Turn struct {
	Prompt   string
	Response string
}

type line struct {
	Type    string `json:"type"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type block struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var reminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// LastTurnFile reads the transcript at path and returns its last turn.
func LastTurnFile(path string) (Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return Turn{}, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return LastTurn(f)
}

// LastTurn scans a transcript and returns the last user prompt together with
// the assistant text written after it. Tool traffic, reminders and
// malformed lines are skipped.
func LastTurn(r io.Reader) (Turn, error) {
	var turn Turn
	var response []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil || l.Message == nil {
			continue
		}
		text := textOf(l.Message.Content)
		if text == "" {
			continue
		}
		switch l.Type {
		case "user":
			turn.Prompt = text
			response = response[:0]
		case "assistant":
			response = append(response, text)
		}
	}
	if err := sc.Err(); err != nil {
		return Turn{}, fmt.Errorf("scan transcript: %w", err)
	}
	turn.Response = strings.Join(response, "\n")
	return turn, nil
}

// textOf extracts plain text from content that is either a string or a list
// of blocks. Only text blocks count.
func textOf(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var blocks []block
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		text = strings.Join(parts, "\n")
	}
	return strings.TrimSpace(reminderRe.ReplaceAllString(text, ""))
}
