package planner

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// NextStep is the planner's choice for the next tool call.
type NextStep struct {
	Justification string `json:"justification,omitempty"`
	Context       string `json:"context"`
	SubGoal       string `json:"sub_goal"`
	ToolName      string `json:"tool_name"`
}

// ToolCommand is the oracle's command for a selected tool.
type ToolCommand struct {
	Analysis    string `json:"analysis"`
	Explanation string `json:"explanation"`
	Command     string `json:"command"`
}

// Conclusion values of a verification.
const (
	ConclusionStop     = "STOP"
	ConclusionContinue = "CONTINUE"
)

// Verification is the oracle's judgement whether the session may stop.
type Verification struct {
	Analysis   string `json:"analysis"`
	StopSignal bool   `json:"stop_signal"`
}

// Conclusion returns STOP or CONTINUE.
func (v Verification) Conclusion() string {
	if v.StopSignal {
		return ConclusionStop
	}
	return ConclusionContinue
}

// ErrNoNextStep is returned when a response names no context, sub-goal
// and tool.
var ErrNoNextStep = errors.New("planner: no next step found in response")

// Defaults used when a command response lacks a section.
const (
	NoAnalysis    = "No analysis found."
	NoExplanation = "No explanation found."
	NoCommand     = "No command found."
)

var (
	nextStepPattern    = regexp.MustCompile(`(?s)Context:\s*(.*?)Sub-Goal:\s*(.*?)Tool Name:\s*(.*?)(?:\n\n|\z)`)
	analysisPattern    = regexp.MustCompile(`(?s)Analysis:(.*?)Command Explanation`)
	explanationPattern = regexp.MustCompile(`(?s)Command Explanation:(.*?)Generated Command`)
	commandPattern     = regexp.MustCompile("(?s)Generated Command:.*?```[a-zA-Z]*\n(.*?)```")
	conclusionPattern  = regexp.MustCompile(`(?is)conclusion\**:?\s*\**\s*(\w+)`)
	leadingFence       = regexp.MustCompile("^```[a-zA-Z]*\\s*")
)

// decodeJSON unmarshals text, tolerating a surrounding code fence.
func decodeJSON(text string, v any) bool {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "{") {
		s = stripFence(s)
	}
	if !strings.HasPrefix(s, "{") {
		return false
	}
	return json.Unmarshal([]byte(s), v) == nil
}

func stripFence(s string) string {
	s = leadingFence.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// ParseNextStep extracts the next step from a structured (JSON) or free
// text response. With free text the last Context/Sub-Goal/Tool Name triple
// wins.
func ParseNextStep(text string) (NextStep, error) {
	var ns NextStep
	if decodeJSON(text, &ns) && ns.ToolName != "" {
		ns.Context = strings.TrimSpace(ns.Context)
		ns.SubGoal = strings.TrimSpace(ns.SubGoal)
		ns.ToolName = strings.TrimSpace(ns.ToolName)
		return ns, nil
	}
	clean := strings.ReplaceAll(text, "**", "")
	matches := nextStepPattern.FindAllStringSubmatch(clean, -1)
	if len(matches) == 0 {
		return NextStep{}, ErrNoNextStep
	}
	m := matches[len(matches)-1]
	ns = NextStep{
		Context:  strings.TrimSpace(m[1]),
		SubGoal:  strings.TrimSpace(m[2]),
		ToolName: strings.TrimSpace(m[3]),
	}
	if before, _, ok := strings.Cut(clean, "Context:"); ok {
		ns.Justification = strings.TrimSpace(before)
	}
	return ns, nil
}

// ParseCommand extracts analysis, explanation and command from a structured
// or free text response. Code fences are stripped from the command.
func ParseCommand(text string) ToolCommand {
	var tc ToolCommand
	if decodeJSON(text, &tc) && tc.Command != "" {
		return ToolCommand{
			Analysis:    strings.TrimSpace(tc.Analysis),
			Explanation: strings.TrimSpace(tc.Explanation),
			Command:     stripFence(tc.Command),
		}
	}
	tc = ToolCommand{Analysis: NoAnalysis, Explanation: NoExplanation, Command: NoCommand}
	if m := analysisPattern.FindStringSubmatch(text); m != nil {
		tc.Analysis = strings.TrimSpace(m[1])
	}
	if m := explanationPattern.FindStringSubmatch(text); m != nil {
		tc.Explanation = strings.TrimSpace(m[1])
	}
	if m := commandPattern.FindStringSubmatch(text); m != nil {
		tc.Command = stripFence(m[1])
	}
	return tc
}

// ParseVerification extracts the stop decision. Free text is scanned for
// the last "Conclusion: X"; without one, any mention of "stop" stops and
// everything else continues.
func ParseVerification(text string) Verification {
	var v struct {
		Analysis   string `json:"analysis"`
		StopSignal *bool  `json:"stop_signal"`
	}
	if decodeJSON(text, &v) && v.StopSignal != nil {
		return Verification{Analysis: v.Analysis, StopSignal: *v.StopSignal}
	}
	out := Verification{Analysis: text}
	matches := conclusionPattern.FindAllStringSubmatch(text, -1)
	if n := len(matches); n > 0 {
		switch strings.ToUpper(matches[n-1][1]) {
		case ConclusionStop:
			out.StopSignal = true
			return out
		case ConclusionContinue:
			return out
		}
	}
	lower := strings.ToLower(text)
	out.StopSignal = strings.Contains(lower, "stop")
	return out
}
