package provider

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

const maxLineSize = 10 * 1024 * 1024 // 10MB

// parseStats is what a full parse extracts from a log file: counters
// and the activity calendar, no message content.
type parseStats struct {
	WorkingDir string
	Messages   int
	ToolCalls  int
	LineCount  int
	FirstTS    time.Time
	LastTS     time.Time
	ActiveDays map[string]session.DaySet
}

func (p *parseStats) touch(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if p.FirstTS.IsZero() || ts.Before(p.FirstTS) {
		p.FirstTS = ts
	}
	if ts.After(p.LastTS) {
		p.LastTS = ts
	}
	key := session.MonthKey(ts)
	if p.ActiveDays == nil {
		p.ActiveDays = make(map[string]session.DaySet)
	}
	p.ActiveDays[key] = p.ActiveDays[key].With(ts.Day())
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type claudeRecord struct {
	Type      string          `json:"type"`
	IsMeta    bool            `json:"isMeta"`
	Timestamp string          `json:"timestamp"`
	Cwd       string          `json:"cwd"`
	Message   json.RawMessage `json:"message"`
}

type claudeMessage struct {
	Content json.RawMessage `json:"content"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
}

// parseClaudeStats scans a Claude Code log, counting messages and tool
// calls and recording which days show activity.
func parseClaudeStats(filePath string) (parseStats, error) {
	var stats parseStats

	f, err := os.Open(filePath)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		stats.LineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec claudeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Cwd != "" && stats.WorkingDir == "" {
			stats.WorkingDir = rec.Cwd
		}
		if rec.IsMeta {
			continue
		}
		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}

		stats.touch(parseTimestamp(rec.Timestamp))
		stats.Messages++

		var msg claudeMessage
		if err := json.Unmarshal(rec.Message, &msg); err != nil {
			continue
		}
		var blocks []claudeContentBlock
		if err := json.Unmarshal(msg.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "tool_use" {
				stats.ToolCalls++
			}
		}
	}
	return stats, scanner.Err()
}

type codexRecord struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexSessionMeta struct {
	Cwd string `json:"cwd"`
}

type codexPayload struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// parseCodexStats scans a Codex rollout log the same way.
func parseCodexStats(filePath string) (parseStats, error) {
	var stats parseStats

	f, err := os.Open(filePath)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		stats.LineCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec codexRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		ts := parseTimestamp(rec.Timestamp)

		switch rec.Type {
		case "session_meta":
			var meta codexSessionMeta
			if err := json.Unmarshal(rec.Payload, &meta); err == nil && stats.WorkingDir == "" {
				stats.WorkingDir = meta.Cwd
			}

		case "event_msg":
			var p codexPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				continue
			}
			if p.Type != "user_message" && p.Type != "agent_message" {
				continue
			}
			stats.touch(ts)
			stats.Messages++

		case "response_item":
			var p codexPayload
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				continue
			}
			switch p.Type {
			case "message":
				stats.touch(ts)
				stats.Messages++
			case "function_call", "local_shell_call", "custom_tool_call":
				stats.touch(ts)
				stats.ToolCalls++
			}
		}
	}
	return stats, scanner.Err()
}

// deriveID builds a stable session ID from the log file name. Agent
// CLIs name session files by UUID (Codex prefixes a timestamp); falling
// back to the name stem keeps unusual files indexable.
func deriveID(src session.SourceRef, base string) string {
	stem := strings.TrimSuffix(base, ".jsonl")
	if len(stem) >= 36 {
		if u, err := parseUUID(stem[len(stem)-36:]); err == nil {
			return src.String() + ":" + u
		}
	}
	return src.String() + ":" + stem
}
