package model

import "strings"

// DefaultSessionWindow is the number of conversation turns a session keeps.
const DefaultSessionWindow = 5

// Turn is one question/answer exchange.
type Turn struct {
	Input  string
	Output string
}

// Session is a bounded conversational buffer for one session ID. It is not
// persisted across process restarts.
type Session struct {
	ID     string
	Window int
	Turns  []Turn
}

// Append records a turn and truncates to the most recent Window turns.
func (s *Session) Append(input, output string) {
	s.Turns = append(s.Turns, Turn{Input: input, Output: output})
	window := s.Window
	if window <= 0 {
		window = DefaultSessionWindow
	}
	if len(s.Turns) > window {
		s.Turns = s.Turns[len(s.Turns)-window:]
	}
}

// Render returns the chronological transcript, oldest first.
func (s *Session) Render() string {
	var sb strings.Builder
	for _, turn := range s.Turns {
		sb.WriteString("Human: ")
		sb.WriteString(turn.Input)
		sb.WriteString("\n")
		sb.WriteString("AI: ")
		sb.WriteString(turn.Output)
		sb.WriteString("\n")
	}
	return sb.String()
}

// MessageCount returns the number of retained messages (two per turn).
func (s *Session) MessageCount() int {
	return len(s.Turns) * 2
}
