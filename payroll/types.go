// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payroll implements the confidential salary ledger precompile:
// role-gated employee registry, encrypted balance accounting over FHE
// handles, and pause control.
package payroll

import (
	"errors"

	"github.com/luxfi/geth/common"
)

// Role identifies an access control role on the ledger.
type Role uint8

const (
	RoleAdmin Role = iota
	RoleHR
	RolePayroll
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "ADMIN"
	case RoleHR:
		return "HR"
	case RolePayroll:
		return "PAYROLL"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrUnauthorizedOperation = errors.New("unauthorized operation")
	ErrEnforcedPause         = errors.New("operations are paused")
	ErrExpectedPause         = errors.New("operations are not paused")
	ErrEmployeeNotFound      = errors.New("employee not found")
	ErrEmployeeAlreadyExists = errors.New("employee already exists")
	ErrEmptyReason           = errors.New("reason must not be empty")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientGas       = errors.New("insufficient gas")
	ErrReadOnly              = errors.New("cannot write in read-only mode")
	ErrInvalidRole           = errors.New("invalid role")
)

// Gas costs for ledger operations
const (
	GasAddEmployee uint64 = 100000
	GasRemove      uint64 = 50000
	GasUpdate      uint64 = 80000
	GasPay         uint64 = 150000
	GasTransfer    uint64 = 200000
	GasAdmin       uint64 = 20000
	GasRead        uint64 = 5000
)

// EventKind discriminates ledger journal entries.
type EventKind uint8

const (
	EventEmployeeAdded EventKind = iota + 1
	EventEmployeeRemoved
	EventSalaryUpdated
	EventSalaryPaid
	EventBonusPaid
	EventDeductionProcessed
	EventTransfer
)

// Event is a ledger journal entry. Amounts stay encrypted; an event carries
// the handle of the amount, never a plaintext.
type Event struct {
	Kind      EventKind
	Employee  common.Address
	From      common.Address
	To        common.Address
	Amount    common.Hash
	Reason    string
	Timestamp uint64
}
