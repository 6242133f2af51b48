package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// FileWriter writes the catalog as JSON when Path ends in .json and as YAML
// otherwise. The file is replaced atomically.
type FileWriter struct {
	Path string
}

func (w *FileWriter) Write(_ context.Context, c Catalog) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(w.Path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.Errorf("encoding catalog: %w", err)
	}

	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".*.tmp")
	if err != nil {
		return errors.Errorf("writing catalog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Errorf("writing catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("writing catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.Path); err != nil {
		return errors.Errorf("writing catalog: %w", err)
	}
	return nil
}
