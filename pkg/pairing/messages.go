package pairing

import (
	"os"
	"strings"
)

// BuildReply renders the reply sent to an unpaired sender. The template
// is fixed: it must name the resolved identity, the code, and the exact
// operator command, and it stays identical regardless of why pairing was
// required so internals never leak to unauthenticated senders.
func BuildReply(channel, idLine, code string) string {
	return strings.Join([]string{
		"nestor: access not configured.",
		"",
		idLine,
		"",
		"Pairing code: " + code,
		"",
		"Ask the bot owner to approve with:",
		FormatCommand("nestor pairing approve " + channel + " " + code),
	}, "\n")
}

// FormatCommand inserts the active profile flag into a `nestor ...`
// command line so operator instructions stay copy-pasteable under
// non-default profiles.
func FormatCommand(command string) string {
	profile := strings.TrimSpace(os.Getenv("NESTOR_PROFILE"))
	if profile == "" || strings.EqualFold(profile, "default") {
		return command
	}
	if strings.Contains(command, "--profile ") {
		return command
	}
	if !strings.Contains(profile, " ") {
		fields := strings.Fields(command)
		for i, f := range fields {
			if f == "nestor" {
				rest := append([]string{"--profile", profile}, fields[i+1:]...)
				return strings.Join(append(fields[:i+1:i+1], rest...), " ")
			}
		}
	}
	return command
}
