// Package manifest records the input and output files touched by a run —
// path, size, SHA-256 — to a JSON or YAML sidecar for audit trails.
package manifest

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbehr1/dlt-sort/internal/common"
)

// Item describes a single file recorded in a Manifest.
type Item struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	Sha256 string `json:"sha256" yaml:"sha256"`
	Role   string `json:"role" yaml:"role"`
}

// Manifest is the top-level document written by Save/SaveYAML.
type Manifest struct {
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo" yaml:"shaAlgo"`
	Inputs    []Item    `json:"inputs" yaml:"inputs"`
	Outputs   []Item    `json:"outputs" yaml:"outputs"`
}

// Build hashes every input and output path and classifies each by role.
// A path that no longer exists by the time the manifest is built (for
// example an output file a failed run never created) is skipped rather
// than failing the whole manifest.
func Build(inputs, outputs []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range inputs {
		item, ok, err := hashItem(p, "input")
		if err != nil {
			return m, err
		}
		if ok {
			m.Inputs = append(m.Inputs, item)
		}
	}
	for _, p := range outputs {
		item, ok, err := hashItem(p, "output")
		if err != nil {
			return m, err
		}
		if ok {
			m.Outputs = append(m.Outputs, item)
		}
	}
	return m, nil
}

func hashItem(path, defaultRole string) (Item, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return Item{}, false, nil
	}
	hex, size, err := common.Sha256OfFile(path)
	if err != nil {
		return Item{}, false, err
	}
	return Item{Path: path, Size: size, Sha256: hex, Role: role(path, defaultRole)}, true, nil
}

func role(path, defaultRole string) string {
	if strings.HasSuffix(path, ".dlt") {
		return defaultRole + "-dlt"
	}
	return defaultRole
}

// Save writes m to out as indented JSON.
func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// SaveYAML writes m to out as YAML.
func SaveYAML(m Manifest, out string) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// PrimaryOutputSha256 returns the SHA-256 of the first recorded output, or
// "" if the manifest has none. Used by internal/report to feed the
// optional QR code.
func PrimaryOutputSha256(m Manifest) string {
	if len(m.Outputs) == 0 {
		return ""
	}
	return m.Outputs[0].Sha256
}
