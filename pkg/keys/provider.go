package keys

import (
	"bytes"
	"errors"
	"fmt"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// Provider supplies passwords for one encrypted archive.
//
// Implementations are not safe for concurrent use. Callers hold the write
// lock of the archive's mount point while they talk to its provider.
type Provider interface {
	// WritePassword returns the password to encrypt the archive with.
	WritePassword() ([]byte, error)

	// ReadPassword returns a password to decrypt the archive with. invalid
	// reports that the previously returned password failed authentication;
	// the provider must then offer a different password or fail with a
	// KeyRetrieval error.
	ReadPassword(invalid bool) ([]byte, error)

	// KeyStrength returns the key strength used for writing.
	KeyStrength() KeyStrength

	// SetKeyStrength records the key strength, e.g. the one found in an
	// archive header.
	SetKeyStrength(KeyStrength)

	// Invalidate discards cached key material.
	Invalidate()
}

// ErrPasswordRejected is the cause of a KeyRetrieval error from a provider
// that has no other password to offer.
var ErrPasswordRejected = errors.New("password rejected and no other password available")

// Static always offers the same password. Once that password is rejected it
// fails instead of offering it again.
type Static struct {
	mountPoint string
	password   []byte
	strength   KeyStrength
	rejected   bool
}

// NewStatic creates a provider for mountPoint that always offers password.
func NewStatic(mountPoint string, password []byte, strength KeyStrength) *Static {
	return &Static{
		mountPoint: mountPoint,
		password:   bytes.Clone(password),
		strength:   strength,
	}
}

func (s *Static) WritePassword() ([]byte, error) {
	if len(s.password) == 0 {
		return nil, fserrors.NewKeyRetrievalError(s.mountPoint, errors.New("no password configured"))
	}
	return bytes.Clone(s.password), nil
}

func (s *Static) ReadPassword(invalid bool) ([]byte, error) {
	if invalid {
		s.rejected = true
	}
	if s.rejected {
		return nil, fserrors.NewKeyRetrievalError(s.mountPoint, ErrPasswordRejected)
	}
	return s.WritePassword()
}

func (s *Static) KeyStrength() KeyStrength { return s.strength }

func (s *Static) SetKeyStrength(k KeyStrength) { s.strength = k }

// Invalidate forgets a previous rejection.
func (s *Static) Invalidate() { s.rejected = false }

// Prompter asks a human for passwords.
type Prompter interface {
	// Password asks for an existing password.
	Password(label string) (string, error)
	// NewPassword asks for a new password, typically twice.
	NewPassword(label string) (string, error)
}

// DefaultMaxAttempts bounds the read prompts of a PromptProvider.
const DefaultMaxAttempts = 3

// PromptProvider asks a Prompter for passwords and caches the last accepted
// one until Invalidate. A rejected password is never returned again.
type PromptProvider struct {
	mountPoint  string
	prompter    Prompter
	maxAttempts int
	strength    KeyStrength

	cached   []byte
	rejected [][]byte
	attempts int
}

// NewPromptProvider creates a prompting provider for mountPoint. A
// maxAttempts below 1 selects DefaultMaxAttempts.
func NewPromptProvider(mountPoint string, prompter Prompter, strength KeyStrength, maxAttempts int) *PromptProvider {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &PromptProvider{
		mountPoint:  mountPoint,
		prompter:    prompter,
		maxAttempts: maxAttempts,
		strength:    strength,
	}
}

func (p *PromptProvider) WritePassword() ([]byte, error) {
	if p.cached != nil {
		return bytes.Clone(p.cached), nil
	}
	pw, err := p.prompter.NewPassword(fmt.Sprintf("New password for %s", p.mountPoint))
	if err != nil {
		return nil, fserrors.NewKeyRetrievalError(p.mountPoint, err)
	}
	if pw == "" {
		return nil, fserrors.NewKeyRetrievalError(p.mountPoint, errors.New("empty password"))
	}
	p.cached = []byte(pw)
	return bytes.Clone(p.cached), nil
}

func (p *PromptProvider) ReadPassword(invalid bool) ([]byte, error) {
	if !invalid {
		p.attempts = 0
		if p.cached != nil {
			return bytes.Clone(p.cached), nil
		}
	} else if p.cached != nil {
		p.rejected = append(p.rejected, p.cached)
		p.cached = nil
	}

	label := fmt.Sprintf("Password for %s", p.mountPoint)
	if invalid {
		label = fmt.Sprintf("Wrong password, try again for %s", p.mountPoint)
	}

	for p.attempts < p.maxAttempts {
		p.attempts++
		pw, err := p.prompter.Password(label)
		if err != nil {
			return nil, fserrors.NewKeyRetrievalError(p.mountPoint, err)
		}
		if pw == "" || p.wasRejected([]byte(pw)) {
			continue
		}
		p.cached = []byte(pw)
		return bytes.Clone(p.cached), nil
	}
	return nil, fserrors.NewKeyRetrievalError(p.mountPoint,
		fmt.Errorf("no valid password after %d attempts", p.maxAttempts))
}

func (p *PromptProvider) KeyStrength() KeyStrength { return p.strength }

func (p *PromptProvider) SetKeyStrength(k KeyStrength) { p.strength = k }

func (p *PromptProvider) wasRejected(pw []byte) bool {
	for _, r := range p.rejected {
		if bytes.Equal(pw, r) {
			return true
		}
	}
	return false
}

func (p *PromptProvider) Invalidate() {
	zero(p.cached)
	for _, r := range p.rejected {
		zero(r)
	}
	p.cached = nil
	p.rejected = nil
	p.attempts = 0
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
