package contracts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidahmann/partnergate/pkg/types"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrInvalidContract  = errors.New("invalid contract")
	ErrDuplicateID      = errors.New("duplicate contract id")
)

// Registry resolves contracts by id. It is read-only to the pipeline.
type Registry interface {
	Get(contractID string) (types.DataContract, error)
	List() []types.DataContract
}

type MemoryRegistry struct {
	mu        sync.RWMutex
	contracts map[string]LoadedContract
}

func NewMemoryRegistry(loaded ...LoadedContract) (*MemoryRegistry, error) {
	r := &MemoryRegistry{contracts: make(map[string]LoadedContract, len(loaded))}
	for _, lc := range loaded {
		if err := r.add(lc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *MemoryRegistry) add(lc LoadedContract) error {
	if err := Validate(lc.Contract); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contracts[lc.Contract.ContractID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, lc.Contract.ContractID)
	}
	r.contracts[lc.Contract.ContractID] = lc
	return nil
}

func (r *MemoryRegistry) Get(contractID string) (types.DataContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.contracts[contractID]
	if !ok {
		return types.DataContract{}, fmt.Errorf("%w: %s", ErrContractNotFound, contractID)
	}
	return lc.Contract, nil
}

// Hash returns the digest of the source bytes the contract was loaded from.
func (r *MemoryRegistry) Hash(contractID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.contracts[contractID]
	return lc.Hash, ok
}

func (r *MemoryRegistry) List() []types.DataContract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DataContract, 0, len(r.contracts))
	for _, lc := range r.contracts {
		out = append(out, lc.Contract)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractID < out[j].ContractID })
	return out
}

// Validate checks a contract is usable by the validation pipeline.
func Validate(c types.DataContract) error {
	if c.ContractID == "" {
		return fmt.Errorf("%w: missing contract_id", ErrInvalidContract)
	}
	if c.Frequency != "" && !types.ValidFrequency(c.Frequency) {
		return fmt.Errorf("%w: %s: unknown frequency %q", ErrInvalidContract, c.ContractID, c.Frequency)
	}
	seen := map[string]struct{}{}
	for _, f := range c.RequiredFields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: field without name", ErrInvalidContract, c.ContractID)
		}
		if !types.ValidFieldType(f.Type) {
			return fmt.Errorf("%w: %s: field %s has unknown type %q", ErrInvalidContract, c.ContractID, f.Name, f.Type)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("%w: %s: field %s declared twice", ErrInvalidContract, c.ContractID, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}
