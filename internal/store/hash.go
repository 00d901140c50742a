package store

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sort"
)

// FileHash returns the hex SHA-256 of a file's contents.
func FileHash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(content)), nil
}

// ComputeCacheKey computes a deterministic key for a run's inputs. File
// contents are not part of the key; a cached run is validated against the
// content hashes recorded with it.
func ComputeCacheKey(file string, args, generators []string, fingerprint string) string {
	h := sha256.New()

	fmt.Fprintf(h, "file:%s\n", file)

	// Argument order matters to a compiler; keep it.
	for _, a := range args {
		fmt.Fprintf(h, "arg:%s\n", a)
	}

	// Generator names — sorted for determinism.
	sorted := make([]string, len(generators))
	copy(sorted, generators)
	sort.Strings(sorted)
	for _, g := range sorted {
		fmt.Fprintf(h, "generator:%s\n", g)
	}

	fmt.Fprintf(h, "fingerprint:%s\n", fingerprint)

	return fmt.Sprintf("%x", h.Sum(nil))
}
