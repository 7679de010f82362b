package dump

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteYAML writes the snapshot as one YAML document. Field order is
// fixed by the struct layout, so identical snapshots produce identical
// bytes.
func WriteYAML(w io.Writer, snap *Snapshot) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("dump: encode yaml: %w", err)
	}
	return enc.Close()
}
