// Package prompt asks the operator for confirmations and credentials.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"

	"grimm.is/sieve/internal/target"
)

// Prompter is everything the orchestrator asks a human.
type Prompter interface {
	// Confirm returns false when the operator declines.
	Confirm(ctx context.Context, title, description string) (bool, error)
	target.CredentialSource
}

// Terminal prompts on the controlling terminal.
type Terminal struct{}

// Confirm shows a yes/no question. Aborting the form counts as no.
func (Terminal) Confirm(ctx context.Context, title, description string) (bool, error) {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Credentials asks for the password, and the username when the policy names
// none. The password is masked.
func (Terminal) Credentials(ctx context.Context, host, username string) (target.Credentials, error) {
	creds := target.Credentials{Username: username}

	var fields []huh.Field
	if username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username for "+host).
			Validate(required).
			Value(&creds.Username))
	}
	fields = append(fields, huh.NewInput().
		Title(fmt.Sprintf("Password for %s", host)).
		Description("Used to log in and for sudo. Kept in memory only.").
		EchoMode(huh.EchoModePassword).
		Validate(required).
		Value(&creds.Password))

	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeBase16())
	if err := form.RunWithContext(ctx); err != nil {
		return target.Credentials{}, fmt.Errorf("credential prompt: %w", err)
	}
	return creds, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}

// NoConfirm answers yes to every confirmation and defers credentials to the
// wrapped prompter.
type NoConfirm struct {
	Prompter
}

// Confirm always returns true.
func (NoConfirm) Confirm(context.Context, string, string) (bool, error) { return true, nil }

// Scripted replays canned answers. Used where no terminal is available.
type Scripted struct {
	mu      sync.Mutex
	answers []bool
	creds   target.Credentials

	Confirms    []string
	CredentialN int
}

// NewScripted returns a prompter that answers confirmations in order and
// always supplies creds. Confirmations beyond the script are declined.
func NewScripted(creds target.Credentials, answers ...bool) *Scripted {
	return &Scripted{answers: answers, creds: creds}
}

func (s *Scripted) Confirm(_ context.Context, title, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Confirms = append(s.Confirms, title)
	if len(s.answers) == 0 {
		return false, nil
	}
	ok := s.answers[0]
	s.answers = s.answers[1:]
	return ok, nil
}

func (s *Scripted) Credentials(_ context.Context, _, username string) (target.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CredentialN++
	c := s.creds
	if c.Username == "" {
		c.Username = username
	}
	return c, nil
}
