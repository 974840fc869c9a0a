package cache

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// loadSnapshot reads a YAML snapshot into out. A missing or corrupt file
// reports found=false without error.
func loadSnapshot(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, nil
	}
	return true, nil
}

// saveSnapshot writes v atomically to path.
func saveSnapshot(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
