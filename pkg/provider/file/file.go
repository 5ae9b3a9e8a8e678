package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/clustergraph/pkg/crm"
	"github.com/rmax-ai/clustergraph/pkg/provider"
)

// Source reads a cluster snapshot from a YAML or JSON file on every Fetch, so edits to the
// file show up on the next poll.
type Source struct {
	path string
}

var _ provider.Source = (*Source)(nil)

func NewSource(path string) *Source {
	return &Source{path: path}
}

func (s *Source) ID() provider.SourceID {
	return provider.SourceID("file:" + filepath.Base(s.path))
}

func (s *Source) Fetch(ctx context.Context) (crm.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status, err := Load(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", provider.ErrNoSnapshot, err)
		}
		return nil, err
	}
	return status, nil
}

// Load reads a snapshot file. The format follows the extension; anything other than .json is
// read as YAML.
func Load(path string) (*crm.ClusterStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	status, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return status, nil
}

// Decode parses a snapshot in the given format ("yaml" or "json") and validates it.
func Decode(r io.Reader, format string) (*crm.ClusterStatus, error) {
	var status crm.ClusterStatus
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&status); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&status); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err := Validate(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Validate rejects snapshots that are not self-consistent: an id defined twice, or a group or
// clone member that is defined nowhere.
func Validate(s *crm.ClusterStatus) error {
	seen := make(map[string]string)
	define := func(id, kind string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("resource %q defined as both %s and %s", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}
	for id := range s.Primitives {
		if err := define(id, "primitive"); err != nil {
			return err
		}
	}
	for id := range s.Groups {
		if err := define(id, "group"); err != nil {
			return err
		}
	}
	for id := range s.Clones {
		if err := define(id, "clone"); err != nil {
			return err
		}
	}
	if _, ok := seen[crm.TopLevelGroup]; ok {
		return fmt.Errorf("resource id %q is reserved", crm.TopLevelGroup)
	}

	for id, g := range s.Groups {
		for _, m := range g.Members {
			if _, ok := seen[m]; !ok {
				return fmt.Errorf("group %q lists unknown member %q", id, m)
			}
		}
	}
	for id, c := range s.Clones {
		if _, ok := seen[c.Child]; !ok {
			return fmt.Errorf("clone %q wraps unknown resource %q", id, c.Child)
		}
	}
	for _, m := range s.TopLevel {
		if _, ok := seen[m]; !ok {
			return fmt.Errorf("top level lists unknown resource %q", m)
		}
	}
	return nil
}
