// Package filestore persists the session record as a single file on disk.
// Writes go to a temp file in the same directory and are renamed into place,
// so a crash mid-write never leaves a half-written record behind.
package filestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-realms-auth/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	recordPerms = 0o600

	// sealedMagic prefixes encrypted records so Load can tell them apart
	// from plain JSON.
	sealedMagic = "GRS1"

	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Store is a file-backed session.Store holding one record at a fixed path.
type Store struct {
	path       string
	passphrase string
	log        zerolog.Logger
}

var _ session.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPassphrase enables at-rest encryption of the record. The key is derived
// with scrypt and the record sealed with nacl/secretbox; a record that fails
// to open (wrong passphrase, truncation) is reported as a parse fault.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) {
		s.passphrase = passphrase
	}
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// New creates a Store writing to path.
func New(path string, options ...Option) *Store {
	store := &Store{
		path: path,
		log:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

// Save writes the full session record, replacing any prior content.
func (s *Store) Save(_ context.Context, sess *session.Session) error {
	data, err := session.Encode(sess)
	if err != nil {
		return errors.Wrap(err, "[Store.Save] encode")
	}

	if s.passphrase != "" {
		if data, err = seal(data, s.passphrase); err != nil {
			return errors.Wrap(err, "[Store.Save] seal")
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(recordPerms); err != nil {
		tmp.Close()
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	s.log.Debug().Str("path", s.path).Msg("session record written")
	return nil
}

// Load reads the record back. Absent or empty files mean no session.
func (s *Store) Load(_ context.Context) (*session.Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(session.StorageFaultErr, err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	if s.passphrase != "" {
		if data, err = open(data, s.passphrase); err != nil {
			return nil, errors.Wrap(session.ParseFaultErr, err.Error())
		}
	}

	sess, err := session.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Load] decode")
	}
	return sess, nil
}

// Delete removes the record if present.
func (s *Store) Delete(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(session.StorageFaultErr, err.Error())
	}
	return nil
}

func seal(plain []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "salt")
	}
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedMagic)+saltLength+nonceLength+len(plain)+secretbox.Overhead)
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func open(data []byte, passphrase string) ([]byte, error) {
	header := len(sealedMagic) + saltLength + nonceLength
	if len(data) < header || string(data[:len(sealedMagic)]) != sealedMagic {
		return nil, errors.New("record is not sealed")
	}
	salt := data[len(sealedMagic) : len(sealedMagic)+saltLength]
	var nonce [nonceLength]byte
	copy(nonce[:], data[len(sealedMagic)+saltLength:header])

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plain, ok := secretbox.Open(nil, data[header:], &nonce, key)
	if !ok {
		return nil, errors.New("record could not be opened")
	}
	return plain, nil
}

func deriveKey(passphrase string, salt []byte) (*[keyLength]byte, error) {
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, errors.Wrap(err, "scrypt.Key")
	}
	var key [keyLength]byte
	copy(key[:], raw)
	return &key, nil
}
