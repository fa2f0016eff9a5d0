// Package tokenfile persists the Cognito session between CLI invocations.
// The file holds an oauth2.Token (identity token as the access token, plus
// the refresh token and identity token expiry) and a small metadata map
// (username, federated user id). Signing credentials are never written:
// they are re-derived from the refresh token on every run.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// TokenType marks tokens issued by a Cognito user pool.
const TokenType = "Cognito"

// Metadata keys.
const (
	MetaUsername = "username"
	MetaUserID   = "user_id"
	MetaRegion   = "region"
)

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a saved session. Returns (nil, nil, nil) if the file does not
// exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	tf, err := read(path)
	if err != nil || tf == nil {
		return nil, nil, err
	}

	if tf.Token == nil || tf.Token.RefreshToken == "" {
		return nil, nil, fmt.Errorf("tokenfile: %s has no refresh token (login required)", path)
	}

	return tf.Token, tf.Meta, nil
}

// ReadMeta reads just the metadata. Returns (nil, nil) if the file does not
// exist.
func ReadMeta(path string) (map[string]string, error) {
	tf, err := read(path)
	if err != nil || tf == nil {
		return nil, err
	}

	return tf.Meta, nil
}

func read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	return &tf, nil
}

// Save writes the session atomically (temp file + fsync + rename) with
// 0600 permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	data, err := json.MarshalIndent(File{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// UpdateToken replaces the stored token and keeps existing metadata, merged
// with meta. Used after a refresh rotates the identity token.
func UpdateToken(path string, tok *oauth2.Token, meta map[string]string) error {
	existing, err := ReadMeta(path)
	if err != nil {
		return fmt.Errorf("tokenfile: reading metadata for update: %w", err)
	}

	if existing == nil {
		existing = make(map[string]string, len(meta))
	}

	maps.Copy(existing, meta)

	return Save(path, tok, existing)
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
