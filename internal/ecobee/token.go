package ecobee

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
)

const tokenFilePerm = 0o600

// Token is the persisted OAuth token record. Expiry is an absolute unix
// timestamp computed from the vendor's expires_in at acquisition time.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
	Expiry       int64  `json:"expiry"`
}

// Valid reports whether the token can still authorize a request.
func (t *Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Unix() < t.Expiry
}

// TokenStore persists the token record. Load returns (nil, nil) when no
// token has been stored yet.
type TokenStore interface {
	Load() (*Token, error)
	Save(token *Token) error
}

// FileStore keeps the token as a single JSON file. Saves go through a temp
// file in the same directory followed by a rename, so a crash mid-write
// cannot corrupt a previously valid token.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Token, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errFactory.Wrap(ErrTokenLoadFailed, err)
	}

	token := &Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, errFactory.Wrap(ErrTokenCorrupt, err)
	}

	return token, nil
}

func (s *FileStore) Save(token *Token) error {
	errFactory := errors.New()

	data, err := json.Marshal(token)
	if err != nil {
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}
	if err := tmp.Chmod(tokenFilePerm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrTokenSaveFailed, err)
	}

	return nil
}
