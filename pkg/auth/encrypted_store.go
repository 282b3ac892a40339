package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"ttharvest/pkg/fsutil"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// EncryptedSnapshotFile is the file name of the encrypted snapshot
	EncryptedSnapshotFile = "session.enc"
)

// EncryptedSnapshotStore keeps the snapshot encrypted with AES-GCM. The key
// is derived from a passphrase with PBKDF2-SHA256.
type EncryptedSnapshotStore struct {
	path       string
	passphrase PassphraseSource
	mu         sync.RWMutex
}

// fileData is the on-disk envelope
type fileData struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedSnapshotStore creates an encrypted snapshot store under dir
func NewEncryptedSnapshotStore(dir string, passphrase PassphraseSource) (*EncryptedSnapshotStore, error) {
	if passphrase == nil {
		return nil, errors.New("passphrase source is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &EncryptedSnapshotStore{
		path:       filepath.Join(dir, EncryptedSnapshotFile),
		passphrase: passphrase,
	}, nil
}

// Path returns the snapshot file location
func (e *EncryptedSnapshotStore) Path() string {
	return e.path
}

func (e *EncryptedSnapshotStore) Load() (*Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	content, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var fd fileData
	if err := json.Unmarshal(content, &fd); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(fd.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	encrypted, err := base64.StdEncoding.DecodeString(fd.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	key, err := e.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	decrypted, err := decrypt(encrypted, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(decrypted, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &s, nil
}

func (e *EncryptedSnapshotStore) Save(snapshot *Snapshot) error {
	if err := validate(snapshot); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := e.deriveKey(salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	encrypted, err := encrypt(plaintext, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt snapshot: %w", err)
	}

	return fsutil.WriteJSONAtomic(e.path, fileData{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(encrypted),
		Version:   1,
		Modified:  time.Now(),
	}, 0600)
}

func (e *EncryptedSnapshotStore) Exists() bool {
	info, err := os.Stat(e.path)
	return err == nil && info.Size() > 0
}

func (e *EncryptedSnapshotStore) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (e *EncryptedSnapshotStore) deriveKey(salt []byte) ([]byte, error) {
	pass, err := e.passphrase.Passphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return pbkdf2.Key([]byte(pass), salt, iterations, keySize, sha256.New), nil
}

// encrypt encrypts data using AES-GCM
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
