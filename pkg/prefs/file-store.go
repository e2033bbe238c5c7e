package prefs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in one YAML file per user under a base
// directory. A missing file yields the defaults.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, userID+".yaml")
}

func (s *FileStore) Load(_ context.Context, userID string) (Preferences, error) {
	ret := DefaultPreferences()

	b, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return ret, nil
		}
		return ret, errors.Wrap(err, "failed to read preferences file")
	}

	// decode over the defaults so missing keys keep their default values
	if err := yaml.Unmarshal(b, &ret); err != nil {
		return DefaultPreferences(), errors.Wrap(err, "failed to parse preferences file")
	}
	return ret, nil
}

func (s *FileStore) Save(_ context.Context, userID string, p Preferences) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create preferences directory")
	}

	b, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(userID), b, 0o644)
}
