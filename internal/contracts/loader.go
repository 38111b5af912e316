package contracts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/partnergate/internal/crypto"
	"github.com/davidahmann/partnergate/pkg/types"
)

type LoadedContract struct {
	Contract types.DataContract
	Hash     string
}

// LoadContract loads a YAML contract and computes its hash from raw bytes.
func LoadContract(path string) (LoadedContract, error) {
	// #nosec G304 -- path comes from operator-configured contracts_dir.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedContract{}, err
	}

	var c types.DataContract
	if err := yaml.Unmarshal(data, &c); err != nil {
		return LoadedContract{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(c); err != nil {
		return LoadedContract{}, fmt.Errorf("%s: %w", path, err)
	}

	return LoadedContract{
		Contract: c,
		Hash:     crypto.DigestWithPrefix(data),
	}, nil
}

// LoadDir loads every *.yaml / *.yml file in dir into a registry.
func LoadDir(dir string) (*MemoryRegistry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	loaded := make([]LoadedContract, 0, len(names))
	for _, name := range names {
		lc, err := LoadContract(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, lc)
	}
	return NewMemoryRegistry(loaded...)
}
