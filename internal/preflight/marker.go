package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/academykb/internal/config"
)

// MarkerFile records, in the collection directory, that the checks passed
// for a given embedding setup.
const MarkerFile = ".preflight-passed"

// Fingerprint identifies the settings a passed check is valid for.
// Changing provider, model, dimensions or encoding forces a new check.
func Fingerprint(cfg *config.Config) string {
	return fmt.Sprintf("%s/%s/%d/%s",
		strings.ToLower(cfg.Embeddings.Provider), cfg.Embeddings.Model,
		cfg.Embeddings.Dimensions, cfg.Index.Encoding)
}

// NeedsCheck reports whether the checks must run: the marker is missing or
// was written for another fingerprint.
func NeedsCheck(dataDir, fingerprint string) bool {
	_, fp, ok := readMarker(dataDir)
	return !ok || fp != fingerprint
}

// MarkPassed writes the marker for fingerprint.
func MarkPassed(dataDir, fingerprint string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := time.Now().UTC().Format(time.RFC3339) + "\n" + fingerprint + "\n"
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0644)
}

// ClearMarker removes the marker, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	at, _, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(at)
}

func readMarker(dataDir string) (time.Time, string, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return time.Time{}, "", false
	}
	stamp, fp, _ := strings.Cut(strings.TrimSpace(string(content)), "\n")
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return time.Time{}, "", false
	}
	return at, fp, true
}
