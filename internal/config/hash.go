package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// GenerateChecksums computes the BLAKE3 hash of the bots file and writes the
// .checksums manifest next to it. This is the 'config lock' operation: it
// authorizes the current credential state.
func GenerateChecksums(configDir, botsFilename string) (string, error) {
	botsPath := filepath.Join(configDir, botsFilename)
	hash, err := ComputeBlake3Hash(botsPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", botsFilename, err)
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{botsFilename: hash},
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	checksumPath := filepath.Join(configDir, ".checksums")
	// Restrictive permissions: the manifest pins credential state.
	if err := os.WriteFile(checksumPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}

	return hash, nil
}

// LoadChecksums reads the .checksums manifest from a config directory.
// Returns (nil, nil) when no manifest exists; integrity checking is opt-in
// until the first 'config lock'.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, ".checksums")

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}

	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	return &manifest, nil
}

// VerifyBotsFile verifies the bots file against the .checksums manifest.
// A missing manifest passes; a manifest without an entry for the bots file,
// or a hash mismatch, fails.
func VerifyBotsFile(configDir, botsFilename string) error {
	manifest, err := LoadChecksums(configDir)
	if err != nil {
		return err
	}
	if manifest == nil {
		return nil
	}

	expectedHash, ok := manifest.Hashes[botsFilename]
	if !ok {
		return fmt.Errorf("bots file %s has no hash in checksums (run 'herald config lock')", botsFilename)
	}

	if err := VerifyFileHash(filepath.Join(configDir, botsFilename), expectedHash); err != nil {
		return fmt.Errorf("bots file verification failed: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: herald config lock", err)
	}

	return nil
}
