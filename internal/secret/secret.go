package secret

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

var (
	// ErrSecretEmpty means an empty secret was supplied.
	ErrSecretEmpty = errors.New("secret is empty")
	// ErrSecretMismatch means the confirmation input did not match.
	ErrSecretMismatch = errors.New("secret confirmation mismatch")
)

// Validate rejects empty or whitespace-only secrets.
func Validate(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrSecretEmpty
	}
	return nil
}

// Confirm checks a secret and its confirmation re-entry.
func Confirm(first, second string) error {
	if err := Validate(first); err != nil {
		return err
	}
	if first != second {
		return ErrSecretMismatch
	}
	return nil
}

// Prompt reads the shared secret interactively: masked input, entered twice.
// Only a non-empty, matching pair is accepted.
func Prompt() (string, error) {
	var first, second string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Scheduler secret key").
			Description("Shared by every node in the cluster; workers must use the same value.").
			EchoMode(huh.EchoModePassword).
			Value(&first).
			Validate(Validate),
		huh.NewInput().
			Title("Confirm secret key").
			EchoMode(huh.EchoModePassword).
			Value(&second),
	)).Run(); err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	if err := Confirm(first, second); err != nil {
		return "", err
	}
	return first, nil
}

// FromFile reads a non-interactive secret: the first line of the file,
// trimmed. Empty files are rejected.
func FromFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			return s, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return "", fmt.Errorf("%w: %s", ErrSecretEmpty, path)
}
