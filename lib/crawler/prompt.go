package crawler

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// PromptCode asks the operator for a challenge code on the terminal.
// MFA is inherently interactive here: the portal sends a code to a
// phone and someone has to read it off.
func PromptCode(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("crawler: read code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
