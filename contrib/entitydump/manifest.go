package entitydump

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// Format is the dump format version written into every manifest.
const Format = "entitygraph-jsonl/1"

// Manifest describes a dump file. It is written next to the dump as
// <dump>.manifest.json and checked before a restore.
type Manifest struct {
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Count     int       `json:"count"`
	SHA256    string    `json:"sha256"`
}

// Validate checks the manifest fields for completeness.
func (m *Manifest) Validate() error {
	if m.Format != Format {
		return fmt.Errorf("unsupported dump format: %q", m.Format)
	}
	if m.Count < 0 {
		return fmt.Errorf("manifest has negative count %d", m.Count)
	}
	if m.SHA256 == "" {
		return fmt.Errorf("manifest missing sha256")
	}
	return nil
}

// ManifestPath returns the manifest path of a dump file.
func ManifestPath(dumpPath string) string {
	return dumpPath + ".manifest.json"
}

// WriteManifest writes a manifest file alongside the dump.
func WriteManifest(dumpPath string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return os.WriteFile(ManifestPath(dumpPath), data, 0600)
}

// ReadManifest reads and validates the manifest of a dump. Manifests are
// mandatory.
func ReadManifest(dumpPath string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(dumpPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest not found for %s (manifests are mandatory)", dumpPath)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
