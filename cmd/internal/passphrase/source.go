package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt does not match.
var ErrMismatch = errors.New("passphrases do not match")

// Option customises a Source.
type Option func(*Source)

// WithPrompt replaces the default terminal prompt.
func WithPrompt(prompt string) Option {
	return func(s *Source) {
		if strings.TrimSpace(prompt) != "" {
			s.prompt = prompt
		}
	}
}

// WithConfirm asks for the passphrase twice when prompting. Used when a new
// key file is being encrypted.
func WithConfirm() Option {
	return func(s *Source) { s.confirm = true }
}

// Source resolves a key file passphrase once, from an environment variable
// or an interactive prompt, and caches the outcome.
type Source struct {
	envVar  string
	prompt  string
	confirm bool

	interactive func() bool
	read        func(prompt string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source that consults envVar before prompting.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{
		envVar:      strings.TrimSpace(envVar),
		prompt:      "Enter key passphrase: ",
		interactive: stdinIsTerminal,
		read:        readTerminal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the passphrase, resolving it on the first call.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.interactive() {
		if s.envVar != "" {
			return "", fmt.Errorf("key passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("key passphrase required and no terminal available")
	}
	value, err := s.read(s.prompt)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(value) == "" {
		return "", errors.New("key passphrase cannot be empty")
	}
	if s.confirm {
		again, err := s.read("Repeat key passphrase: ")
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		if again != value {
			return "", ErrMismatch
		}
	}
	return value, nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
