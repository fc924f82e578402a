package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"stablecore/crypto"
	"stablecore/engine"
	"stablecore/storage"
)

const (
	positionKeyPrefix = "position:"
	actorIndexKey     = "actors"
)

// Store persists engine positions in a key-value database, one JSON document
// per actor plus an index of every actor ever written. It implements
// engine.State for both the in-memory and LevelDB backends.
type Store struct {
	db storage.Database

	mu sync.Mutex // serialises index read-modify-write
}

// NewStore wraps the database as a position store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedPosition struct {
	Address    string            `json:"address"`
	Prefix     string            `json:"prefix"`
	Collateral map[string]string `json:"collateral,omitempty"`
	MintedDebt string            `json:"mintedDebt"`
}

func positionKey(addr crypto.Address) []byte {
	return []byte(positionKeyPrefix + hex.EncodeToString(addr.Bytes()))
}

// GetPosition loads the actor's position, returning nil when the actor has
// never been written.
func (s *Store) GetPosition(addr crypto.Address) (*engine.Position, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: store not configured")
	}
	raw, err := s.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedPosition
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("ledger: decode position: %w", err)
	}
	return stored.toPosition()
}

// PutPosition writes the position and registers the actor in the index.
func (s *Store) PutPosition(addr crypto.Address, pos *engine.Position) error {
	if s == nil || s.db == nil {
		return errors.New("ledger: store not configured")
	}
	if pos == nil {
		return errors.New("ledger: nil position")
	}
	stored := storedPosition{
		Address:    hex.EncodeToString(addr.Bytes()),
		Prefix:     string(addr.Prefix()),
		MintedDebt: "0",
	}
	if pos.MintedDebt != nil {
		stored.MintedDebt = pos.MintedDebt.String()
	}
	if len(pos.Collateral) > 0 {
		stored.Collateral = make(map[string]string, len(pos.Collateral))
		for symbol, amount := range pos.Collateral {
			if amount == nil {
				continue
			}
			stored.Collateral[symbol] = amount.String()
		}
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("ledger: encode position: %w", err)
	}
	if err := s.indexActor(addr); err != nil {
		return err
	}
	return s.db.Put(positionKey(addr), raw)
}

// Actors lists every indexed actor in insertion order.
func (s *Store) Actors() ([]crypto.Address, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: store not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	actors := make([]crypto.Address, 0, len(entries))
	for _, entry := range entries {
		addr, err := decodeIndexEntry(entry)
		if err != nil {
			return nil, err
		}
		actors = append(actors, addr)
	}
	return actors, nil
}

type indexEntry struct {
	Address string `json:"address"`
	Prefix  string `json:"prefix"`
}

func (s *Store) indexActor(addr crypto.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readIndex()
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(addr.Bytes())
	for _, entry := range entries {
		if entry.Address == encoded {
			return nil
		}
	}
	entries = append(entries, indexEntry{Address: encoded, Prefix: string(addr.Prefix())})
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("ledger: encode index: %w", err)
	}
	return s.db.Put([]byte(actorIndexKey), raw)
}

func (s *Store) readIndex() ([]indexEntry, error) {
	raw, err := s.db.Get([]byte(actorIndexKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []indexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("ledger: decode index: %w", err)
	}
	return entries, nil
}

func decodeIndexEntry(entry indexEntry) (crypto.Address, error) {
	b, err := hex.DecodeString(entry.Address)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("ledger: decode actor %q: %w", entry.Address, err)
	}
	if len(b) != 20 {
		return crypto.Address{}, fmt.Errorf("ledger: actor %q is not 20 bytes", entry.Address)
	}
	return crypto.NewAddress(crypto.AddressPrefix(entry.Prefix), b), nil
}

func (sp storedPosition) toPosition() (*engine.Position, error) {
	b, err := hex.DecodeString(sp.Address)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode address %q: %w", sp.Address, err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("ledger: address %q is not 20 bytes", sp.Address)
	}
	pos := &engine.Position{
		Address:    crypto.NewAddress(crypto.AddressPrefix(sp.Prefix), b),
		Collateral: make(map[string]*big.Int, len(sp.Collateral)),
		MintedDebt: big.NewInt(0),
	}
	for symbol, amount := range sp.Collateral {
		parsed, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("ledger: invalid collateral amount %q for %s", amount, symbol)
		}
		pos.Collateral[symbol] = parsed
	}
	if sp.MintedDebt != "" {
		parsed, ok := new(big.Int).SetString(sp.MintedDebt, 10)
		if !ok {
			return nil, fmt.Errorf("ledger: invalid minted debt %q", sp.MintedDebt)
		}
		pos.MintedDebt = parsed
	}
	return pos, nil
}
