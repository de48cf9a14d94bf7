package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/the-answerai/mcp-server-salesforce/internal/crypto"
)

// DefaultTokenFile is the token document path relative to the home directory.
const DefaultTokenFile = ".config/salesforce-mcp/tokens.json"

const tokenDocumentVersion = 1

// TokenBackend is durable storage for the token store. Save receives the full
// record set and must replace the stored document atomically.
type TokenBackend interface {
	Load() (map[string]TokenRecord, error)
	Save(records map[string]TokenRecord) error
}

// tokenDocument is the on-disk layout. Exactly one of Records or Sealed is set.
type tokenDocument struct {
	Version int                    `json:"version"`
	Records map[string]TokenRecord `json:"records,omitempty"`
	Sealed  []byte                 `json:"sealed,omitempty"`
}

// TokenFile persists all token records in one JSON document.
//
// SECURITY: the directory is created 0700 and the file written 0600. When an
// encryptor is configured the record set is sealed with AES-256-GCM before it
// touches the disk.
type TokenFile struct {
	path      string
	encryptor *crypto.Encryptor
}

// NewTokenFile creates a file backend. An empty path selects
// ~/.config/salesforce-mcp/tokens.json. encryptor may be nil.
func NewTokenFile(path string, encryptor *crypto.Encryptor) (*TokenFile, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, DefaultTokenFile)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	return &TokenFile{path: path, encryptor: encryptor}, nil
}

// Path returns the document path.
func (f *TokenFile) Path() string {
	return f.path
}

// Load reads the document. A missing file yields an empty set.
func (f *TokenFile) Load() (map[string]TokenRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]TokenRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var doc tokenDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	if len(doc.Sealed) > 0 {
		if f.encryptor == nil {
			return nil, fmt.Errorf("token file %s is encrypted but no encryption key is configured", f.path)
		}
		plaintext, err := f.encryptor.Open(doc.Sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt token file: %w", err)
		}
		if err := json.Unmarshal(plaintext, &doc.Records); err != nil {
			return nil, fmt.Errorf("failed to parse decrypted token records: %w", err)
		}
	}

	if doc.Records == nil {
		doc.Records = map[string]TokenRecord{}
	}
	return doc.Records, nil
}

// Save writes the document through a temp file and rename so readers never
// observe a partial write.
func (f *TokenFile) Save(records map[string]TokenRecord) error {
	doc := tokenDocument{Version: tokenDocumentVersion}

	if f.encryptor != nil {
		plaintext, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("failed to marshal token records: %w", err)
		}
		sealed, err := f.encryptor.Seal(plaintext)
		if err != nil {
			return err
		}
		doc.Sealed = sealed
	} else {
		doc.Records = records
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
