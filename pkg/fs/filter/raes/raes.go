// Package raes implements the password based encryption filter for
// archives.
//
// Layout of an encrypted stream:
//
//	magic    [4]byte  "RAES"
//	version  uint8    1
//	strength uint8    keys.KeyStrength
//	salt     [16]byte
//	nonce    [12]byte
//	sealed   []byte   AES-GCM(key, nonce, plaintext, header)
//
// The AES key is PBKDF2-SHA256(password, salt) with the key length of the
// selected strength. The 34 byte header is authenticated as additional data.
package raes

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/keys"
	"golang.org/x/crypto/pbkdf2"
)

const (
	magic      = "RAES"
	version    = 1
	saltSize   = 16
	nonceSize  = 12
	headerSize = len(magic) + 2 + saltSize + nonceSize
)

// DefaultIterations is the PBKDF2 iteration count used when none is set.
const DefaultIterations = 210_000

// Filter encrypts and decrypts archive streams with passwords obtained from
// a keys.Provider.
type Filter struct {
	mountPoint string
	provider   keys.Provider
	iterations int
	maxSize    int64
}

// Option configures a Filter.
type Option func(*Filter)

// WithIterations sets the PBKDF2 iteration count for new archives and for
// reading existing ones.
func WithIterations(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.iterations = n
		}
	}
}

// WithMaxSize bounds the size of an encrypted stream accepted for reading.
func WithMaxSize(n int64) Option {
	return func(f *Filter) {
		f.maxSize = n
	}
}

// New creates the filter for the archive at mountPoint.
func New(mountPoint string, provider keys.Provider, opts ...Option) *Filter {
	f := &Filter{
		mountPoint: mountPoint,
		provider:   provider,
		iterations: DefaultIterations,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Filter) Name() string { return "raes" }

// NewReader reads and authenticates the whole stream. Passwords are
// requested until one authenticates or the provider fails.
func (f *Filter) NewReader(r io.Reader) (io.ReadCloser, error) {
	if f.maxSize > 0 {
		r = io.LimitReader(r, f.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, fserrors.NewCorruptError(f.mountPoint, fmt.Errorf("encrypted archive exceeds %d bytes", f.maxSize))
	}
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, fserrors.NewCorruptError(f.mountPoint, errors.New("not a RAES stream"))
	}
	header := data[:headerSize]
	if header[4] != version {
		return nil, fserrors.NewCorruptError(f.mountPoint, fmt.Errorf("unsupported RAES version %d", header[4]))
	}
	strength := keys.KeyStrength(header[5])
	if !strength.Valid() {
		return nil, fserrors.NewCorruptError(f.mountPoint, fmt.Errorf("invalid key strength %d", header[5]))
	}
	salt := header[6 : 6+saltSize]
	nonce := header[6+saltSize:]
	sealed := data[headerSize:]

	invalid := false
	for {
		password, err := f.provider.ReadPassword(invalid)
		if err != nil {
			return nil, asKeyRetrieval(f.mountPoint, err)
		}
		aead, err := f.aead(password, salt, strength)
		zero(password)
		if err != nil {
			return nil, err
		}
		plain, err := aead.Open(nil, nonce, sealed, header)
		if err == nil {
			f.provider.SetKeyStrength(strength)
			return io.NopCloser(bytes.NewReader(plain)), nil
		}
		invalid = true
	}
}

// NewWriter buffers the plaintext and writes the encrypted stream on Close.
func (f *Filter) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return &writer{filter: f, dst: w}, nil
}

func (f *Filter) aead(password, salt []byte, strength keys.KeyStrength) (cipher.AEAD, error) {
	key := pbkdf2.Key(password, salt, f.iterations, strength.Bytes(), sha256.New)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

type writer struct {
	filter *Filter
	dst    io.Writer
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("raes: write after close")
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	f := w.filter

	password, err := f.provider.WritePassword()
	if err != nil {
		return asKeyRetrieval(f.mountPoint, err)
	}
	defer zero(password)

	strength := f.provider.KeyStrength()
	if !strength.Valid() {
		strength = keys.DefaultKeyStrength
	}

	header := make([]byte, headerSize)
	copy(header, magic)
	header[4] = version
	header[5] = byte(strength)
	if _, err := rand.Read(header[6:]); err != nil {
		return err
	}
	salt := header[6 : 6+saltSize]
	nonce := header[6+saltSize:]

	aead, err := f.aead(password, salt, strength)
	if err != nil {
		return err
	}
	sealed := aead.Seal(nil, nonce, w.buf.Bytes(), header)
	w.buf.Reset()

	if _, err := w.dst.Write(header); err != nil {
		return err
	}
	_, err = w.dst.Write(sealed)
	return err
}

func asKeyRetrieval(mountPoint string, err error) error {
	if fserrors.IsKeyRetrieval(err) {
		return err
	}
	return fserrors.NewKeyRetrievalError(mountPoint, err)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
