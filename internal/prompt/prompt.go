// Package prompt builds the structured prompts sent to the language model.
package prompt

import (
	"strings"
	"unicode/utf8"
)

// SystemPrompt is the fixed system instruction prepended to every prompt.
const SystemPrompt = "You are Edu-Vox, an AI educational assistant that creates memorable mnemonics and explanations. Be concise, clear, and creative."

// Template role markers.
const (
	SystemMarker    = "<|system|>"
	UserMarker      = "<|user|>"
	AssistantMarker = "<|assistant|>"
)

// Mode selects the kind of answer requested.
type Mode string

const (
	ModeMnemonic Mode = "mnemonic"
	ModeExplain  Mode = "explain"
	ModeQuiz     Mode = "quiz"
)

// DefaultMode is used for empty or unknown mode values.
const DefaultMode = ModeMnemonic

// ModeInfo describes a mode for clients.
type ModeInfo struct {
	ID   Mode   `json:"id" doc:"Mode identifier"`
	Name string `json:"name" doc:"Display name"`
}

var (
	modes = []ModeInfo{
		{ID: ModeMnemonic, Name: "Mnemonic Generator"},
		{ID: ModeExplain, Name: "Simple Explanation"},
		{ID: ModeQuiz, Name: "Quick Quiz"},
	}

	instructions = map[Mode]string{
		ModeMnemonic: "Create a mnemonic for:",
		ModeExplain:  "Explain in simple terms:",
		ModeQuiz:     "Create a quick quiz question about:",
	}
)

// Modes returns the supported modes in display order.
func Modes() []ModeInfo {
	out := make([]ModeInfo, len(modes))
	copy(out, modes)
	return out
}

// ParseMode normalizes raw to a known Mode, falling back to DefaultMode.
func ParseMode(raw string) Mode {
	if m := Mode(strings.ToLower(strings.TrimSpace(raw))); m.Valid() {
		return m
	}
	return DefaultMode
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	_, ok := instructions[m]
	return ok
}

// Build renders the prompt for mode and input. Unknown modes use the mnemonic template.
func Build(mode Mode, input string) string {
	if !mode.Valid() {
		mode = DefaultMode
	}
	instruction := instructions[mode]

	var sb strings.Builder
	sb.WriteString(SystemMarker)
	sb.WriteString("\n")
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n")
	sb.WriteString(UserMarker)
	sb.WriteString("\n")
	sb.WriteString(instruction)
	sb.WriteString(" ")
	sb.WriteString(input)
	sb.WriteString("\n")
	sb.WriteString(AssistantMarker)

	return sb.String()
}

// EstimateTokens approximates the token count of s as one token per four runes.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// BuildBounded is Build with input clipped so the estimated prompt size stays
// within maxTokens. The template itself is never clipped; when it alone
// exceeds the budget the input is dropped entirely. maxTokens <= 0 disables
// clipping.
func BuildBounded(mode Mode, input string, maxTokens int) string {
	full := Build(mode, input)
	if maxTokens <= 0 || EstimateTokens(full) <= maxTokens {
		return full
	}

	overhead := utf8.RuneCountInString(Build(mode, ""))
	room := maxTokens*4 - overhead
	if room <= 0 {
		return Build(mode, "")
	}

	runes := []rune(input)
	if room < len(runes) {
		runes = runes[:room]
	}

	return Build(mode, strings.TrimSpace(string(runes)))
}
