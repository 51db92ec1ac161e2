// Package command parses slash commands out of issue comment text.
package command

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind string

const (
	KindTriage  Kind = "triage"
	KindFix     Kind = "fix"
	KindLogs    Kind = "logs"
	KindStatus  Kind = "status"
	KindRerun   Kind = "rerun"
	KindUnknown Kind = "unknown"
)

// NoAreaSpecified is the area of a fix command given without one.
const NoAreaSpecified = "no area specified"

// Command is one parsed slash command. Area is set only for KindFix.
// Raw is the trimmed comment text in every case.
type Command struct {
	Kind Kind
	Area string
	Raw  string
}

// Parse reads a command from text. ok is false when the trimmed text does
// not start with prefix as a whole token, in which case nothing should
// happen. An unrecognized or missing keyword yields KindUnknown.
func Parse(prefix, text string) (cmd Command, ok bool) {
	trimmed := strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(trimmed, prefix) {
		return Command{}, false
	}

	rest := trimmed[len(prefix):]
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return Command{}, false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Command{Kind: KindUnknown, Raw: trimmed}, true
	}

	switch kind := Kind(strings.ToLower(fields[0])); kind {
	case KindFix:
		area := strings.Join(fields[1:], " ")
		if area == "" {
			area = NoAreaSpecified
		}
		return Command{Kind: KindFix, Area: area, Raw: trimmed}, true
	case KindTriage, KindLogs, KindStatus, KindRerun:
		return Command{Kind: kind, Raw: trimmed}, true
	default:
		return Command{Kind: KindUnknown, Raw: trimmed}, true
	}
}

// Acknowledgement is the comment posted back on the issue. prefix is used
// for the usage hint of unknown commands.
func (c Command) Acknowledgement(prefix string) string {
	switch c.Kind {
	case KindTriage:
		return "GitPlumbers received your triage request and will review this issue shortly."
	case KindFix:
		return fmt.Sprintf("GitPlumbers is preparing a fix. Area: %s", c.Area)
	case KindLogs:
		return "GitPlumbers is collecting logs for this issue."
	case KindStatus:
		return "GitPlumbers is checking the current status of this issue."
	case KindRerun:
		return "GitPlumbers is re-running the automation for this issue."
	default:
		return fmt.Sprintf(
			"GitPlumbers did not recognize `%s`.\n\nAvailable commands: `%[2]s triage`, `%[2]s fix <area>`, `%[2]s logs`, `%[2]s status`, `%[2]s rerun`.",
			c.Raw, prefix,
		)
	}
}
