package prompt

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/marmos91/arcfs/pkg/keys"
)

// ErrPasswordMismatch indicates the confirmation did not match.
var ErrPasswordMismatch = errors.New("passwords do not match")

// MinPasswordLength is enforced when a new password is chosen.
const MinPasswordLength = 8

// Password asks for a masked password.
func Password(label string) (string, error) {
	p := promptui.Prompt{
		Label:  label,
		Mask:   '*',
		Stdout: os.Stderr,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// PasswordWithConfirmation asks for a new password of at least minLength
// characters and a confirmation.
func PasswordWithConfirmation(label, confirmLabel string, minLength int) (string, error) {
	p := promptui.Prompt{
		Label:  label,
		Mask:   '*',
		Stdout: os.Stderr,
		Validate: func(input string) error {
			if len(input) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	password, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm, err := Password(confirmLabel)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

// Terminal asks for archive passwords on the controlling terminal. Prompts
// go to stderr so that stdout stays clean for 'arcfs cat'.
type Terminal struct{}

var _ keys.Prompter = Terminal{}

func (Terminal) Password(label string) (string, error) {
	return Password(label)
}

// NewPassword retries until the confirmation matches or the user aborts.
func (Terminal) NewPassword(label string) (string, error) {
	for {
		pw, err := PasswordWithConfirmation(label, "Confirm password", MinPasswordLength)
		if errors.Is(err, ErrPasswordMismatch) {
			_, _ = fmt.Fprintln(os.Stderr, err)
			continue
		}
		return pw, err
	}
}
