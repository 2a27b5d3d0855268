// Package production holds the integrations around the engine: channel
// transport, definition persistence and visualization.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm/internal/primitives"
)

// ErrUnknownFormat is returned for a definition file whose extension is not
// .json, .yaml or .yml.
var ErrUnknownFormat = errors.New("unknown definition format")

// DefinitionStore saves and loads state machine definitions by name.
type DefinitionStore interface {
	Save(ctx context.Context, name string, def *primitives.Definition) error
	Load(ctx context.Context, name string) (*primitives.Definition, error)
	List(ctx context.Context) ([]string, error)
}

type codec struct {
	ext       string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{
		ext:       ".json",
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	}
	yamlCodec = codec{ext: ".yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
)

// FileStore is a directory of definition files in one format.
type FileStore struct {
	dir   string
	codec codec
}

// NewJSONStore creates a JSON FileStore, ensuring the directory exists.
func NewJSONStore(dir string) (*FileStore, error) {
	return newFileStore(dir, jsonCodec)
}

// NewYAMLStore creates a YAML FileStore, ensuring the directory exists.
func NewYAMLStore(dir string) (*FileStore, error) {
	return newFileStore(dir, yamlCodec)
}

func newFileStore(dir string, c codec) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, codec: c}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+s.codec.ext)
}

// Save validates def and writes it under name.
func (s *FileStore) Save(ctx context.Context, name string, def *primitives.Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if def == nil {
		return fmt.Errorf("definition %q: %w: nil", name, primitives.ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("definition %q: %w", name, err)
	}
	data, err := s.codec.marshal(def)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", name, err)
	}
	fn := s.path(name)
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

// Load reads and validates the definition stored under name. A missing
// definition wraps os.ErrNotExist.
func (s *FileStore) Load(ctx context.Context, name string) (*primitives.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := s.path(name)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("definition %q: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	return decode(data, s.codec, name)
}

// List returns the stored definition names, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != s.codec.ext {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), s.codec.ext))
	}
	sort.Strings(names)
	return names, nil
}

// ReadDefinitionFile loads one definition, choosing the format from the
// file extension.
func ReadDefinitionFile(path string) (*primitives.Definition, error) {
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return decode(data, c, path)
}

// WriteDefinitionFile writes def to path in the format its extension names.
func WriteDefinitionFile(path string, def *primitives.Definition) error {
	c, err := codecFor(path)
	if err != nil {
		return err
	}
	data, err := c.marshal(def)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonCodec, nil
	case ".yaml", ".yml":
		return yamlCodec, nil
	}
	return codec{}, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
}

func decode(data []byte, c codec, name string) (*primitives.Definition, error) {
	var def primitives.Definition
	if err := c.unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("unmarshal %q: %w", name, err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("definition %q: %w", name, err)
	}
	return &def, nil
}
