// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
)

// TestStateDB is an in-memory StateDB used by precompile tests.
type TestStateDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	accounts map[common.Address]bool
}

// NewTestStateDB returns an empty in-memory state database.
func NewTestStateDB() *TestStateDB {
	return &TestStateDB{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balances: make(map[common.Address]*uint256.Int),
		accounts: make(map[common.Address]bool),
	}
}

func (s *TestStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.storage[addr][key]
}

func (s *TestStateDB) SetState(addr common.Address, key common.Hash, value common.Hash) {
	if s.storage[addr] == nil {
		s.storage[addr] = make(map[common.Hash]common.Hash)
	}
	s.storage[addr][key] = value
}

func (s *TestStateDB) GetBalance(addr common.Address) *uint256.Int {
	if b, ok := s.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

func (s *TestStateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	b := s.GetBalance(addr)
	s.balances[addr] = b.Add(b, amount)
}

func (s *TestStateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) {
	b := s.GetBalance(addr)
	s.balances[addr] = b.Sub(b, amount)
}

func (s *TestStateDB) Exist(addr common.Address) bool {
	return s.accounts[addr] || len(s.storage[addr]) > 0
}

func (s *TestStateDB) CreateAccount(addr common.Address) {
	s.accounts[addr] = true
}

// TestBlockContext is a fixed block context for tests.
type TestBlockContext struct {
	BlockNumber *big.Int
	Time        uint64
}

func (c *TestBlockContext) Number() *big.Int  { return c.BlockNumber }
func (c *TestBlockContext) Timestamp() uint64 { return c.Time }

// TestAccessibleState bundles a TestStateDB and TestBlockContext.
type TestAccessibleState struct {
	StateDB *TestStateDB
	Block   *TestBlockContext
	ChainID *big.Int
}

// NewTestAccessibleState returns an accessible state over a fresh TestStateDB.
func NewTestAccessibleState() *TestAccessibleState {
	return &TestAccessibleState{
		StateDB: NewTestStateDB(),
		Block:   &TestBlockContext{BlockNumber: big.NewInt(1), Time: 1700000000},
		ChainID: big.NewInt(96369),
	}
}

func (s *TestAccessibleState) GetStateDB() StateDB           { return s.StateDB }
func (s *TestAccessibleState) GetBlockContext() BlockContext { return s.Block }
func (s *TestAccessibleState) GetChainID() *big.Int          { return s.ChainID }
