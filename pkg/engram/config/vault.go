// Package config – vault.go provides encrypted secret storage using
// AES-256-GCM with Argon2id key derivation. Secrets live in a local file
// that is unreadable without the master password; the password itself is
// never stored, only a derived key held in memory while unlocked.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/term"
)

const (
	// VaultFile is the default vault file name.
	VaultFile = ".engram.vault"

	// Argon2id parameters (OWASP recommended).
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32 // AES-256

	saltLen = 16

	// verifyEntry is decrypted on unlock to detect a wrong password.
	verifyEntry     = "__verify__"
	verifyPlaintext = "engram-vault-ok"
)

// VaultEntry holds one encrypted secret.
type VaultEntry struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// vaultData is the on-disk format.
type vaultData struct {
	Version int                   `json:"version"`
	Salt    string                `json:"salt"`
	Entries map[string]VaultEntry `json:"entries"`
}

// Vault provides encrypted secret storage backed by a local file.
type Vault struct {
	path string

	mu         sync.RWMutex
	data       *vaultData
	derivedKey []byte
}

// NewVault creates a vault instance for the given file path. The vault is
// not yet unlocked; call Unlock or Create first.
func NewVault(path string) *Vault {
	return &Vault{path: path}
}

// Exists reports whether the vault file exists on disk.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// Path returns the vault file path.
func (v *Vault) Path() string { return v.path }

// IsUnlocked reports whether the vault has been unlocked.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.derivedKey != nil
}

// Create initializes a new vault with the given master password.
func (v *Vault) Create(password string) error {
	if v.Exists() {
		return fmt.Errorf("vault already exists at %s", v.path)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.derivedKey = deriveKey(password, salt)
	v.data = &vaultData{
		Version: 1,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Entries: make(map[string]VaultEntry),
	}

	ve, err := encryptEntry(v.derivedKey, []byte(verifyPlaintext))
	if err != nil {
		return fmt.Errorf("creating verification entry: %w", err)
	}
	v.data.Entries[verifyEntry] = ve

	return v.saveLocked()
}

// Unlock loads the vault using the master password. A wrong password fails
// on the verification entry.
func (v *Vault) Unlock(password string) error {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("reading vault: %w", err)
	}

	var data vaultData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing vault: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(data.Salt)
	if err != nil {
		return fmt.Errorf("decoding salt: %w", err)
	}

	key := deriveKey(password, salt)
	if verify, ok := data.Entries[verifyEntry]; ok {
		if _, err := decryptEntry(key, verify); err != nil {
			return fmt.Errorf("wrong password")
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.derivedKey = key
	v.data = &data
	return nil
}

// Lock zeroes and discards the derived key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.derivedKey {
		v.derivedKey[i] = 0
	}
	v.derivedKey = nil
}

// Set stores an encrypted secret. The vault must be unlocked.
func (v *Vault) Set(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.derivedKey == nil {
		return fmt.Errorf("vault is locked")
	}
	entry, err := encryptEntry(v.derivedKey, []byte(value))
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", name, err)
	}
	v.data.Entries[name] = entry
	return v.saveLocked()
}

// Get decrypts a secret. Returns an empty string for a missing key.
func (v *Vault) Get(name string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.derivedKey == nil {
		return "", fmt.Errorf("vault is locked")
	}
	entry, ok := v.data.Entries[name]
	if !ok {
		return "", nil
	}
	plaintext, err := decryptEntry(v.derivedKey, entry)
	if err != nil {
		return "", fmt.Errorf("decrypting %s: %w", name, err)
	}
	return string(plaintext), nil
}

// Delete removes a secret. The vault must be unlocked.
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.derivedKey == nil {
		return fmt.Errorf("vault is locked")
	}
	delete(v.data.Entries, name)
	return v.saveLocked()
}

// List returns the stored secret names, excluding internal entries. Returns
// nil when locked.
func (v *Vault) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.derivedKey == nil || v.data == nil {
		return nil
	}
	var keys []string
	for k := range v.data.Entries {
		if k == verifyEntry {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// InjectEnv sets every vault secret as an environment variable under its own
// name, so ${VAR} references in config.yaml and provider env lookups
// (OPENAI_API_KEY etc.) resolve without the secrets living in any file.
func (v *Vault) InjectEnv() error {
	if !v.IsUnlocked() {
		return fmt.Errorf("vault is locked")
	}
	for _, key := range v.List() {
		val, err := v.Get(key)
		if err != nil || val == "" {
			continue
		}
		os.Setenv(key, val)
	}
	return nil
}

// ChangePassword re-encrypts all entries under a new master password.
func (v *Vault) ChangePassword(newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.derivedKey == nil {
		return fmt.Errorf("vault is locked")
	}

	decrypted := make(map[string][]byte, len(v.data.Entries))
	for name, entry := range v.data.Entries {
		plaintext, err := decryptEntry(v.derivedKey, entry)
		if err != nil {
			return fmt.Errorf("decrypting %s: %w", name, err)
		}
		decrypted[name] = plaintext
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	newKey := deriveKey(newPassword, salt)

	newEntries := make(map[string]VaultEntry, len(decrypted))
	for name, plaintext := range decrypted {
		entry, err := encryptEntry(newKey, plaintext)
		if err != nil {
			return fmt.Errorf("re-encrypting %s: %w", name, err)
		}
		newEntries[name] = entry
	}

	for i := range v.derivedKey {
		v.derivedKey[i] = 0
	}
	v.derivedKey = newKey
	v.data.Salt = base64.StdEncoding.EncodeToString(salt)
	v.data.Entries = newEntries
	return v.saveLocked()
}

// ---------- Internal ----------

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func encryptEntry(key, plaintext []byte) (VaultEntry, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return VaultEntry{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return VaultEntry{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return VaultEntry{}, err
	}
	return VaultEntry{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}, nil
}

func decryptEntry(key []byte, entry VaultEntry) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(entry.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(entry.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password?)")
	}
	return plaintext, nil
}

// saveLocked writes the vault to disk. Caller must hold v.mu.
func (v *Vault) saveLocked() error {
	data, err := json.MarshalIndent(v.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling vault: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0o600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	return nil
}

// ReadPassword reads a password from the terminal without echoing, falling
// back to plain stdin for piped input.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	password, err := term.ReadPassword(fd)
	if err != nil {
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("reading password: %w", readErr)
		}
		password = buf[:n]
	}
	fmt.Println()

	s := string(password)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s, nil
}
