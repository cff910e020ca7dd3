// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payroll

import (
	"encoding/binary"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/payroll/contract"
	"github.com/luxfi/payroll/fhe"
)

// Method selectors
const (
	SelectorAddEmployee        uint32 = 0x01000000 // addEmployee(address,bytes32,bytes32)
	SelectorRemoveEmployee     uint32 = 0x02000000 // removeEmployee(address)
	SelectorUpdateSalary       uint32 = 0x03000000 // updateEmployeeSalary(address,bytes32,bytes32)
	SelectorPaySalary          uint32 = 0x04000000 // paySalary(address,bytes32,bytes32)
	SelectorPayBonus           uint32 = 0x05000000 // payBonus(address,bytes32,bytes32,string)
	SelectorProcessDeduction   uint32 = 0x06000000 // processDeduction(address,bytes32,bytes32,string)
	SelectorTransfer           uint32 = 0x07000000 // transfer(address,bytes32,bytes32)
	SelectorTransferFrom       uint32 = 0x08000000 // transferFrom(address,address,bytes32)
	SelectorBalanceOf          uint32 = 0x09000000 // balanceOf(address)
	SelectorIsEmployee         uint32 = 0x0A000000 // isEmployee(address)
	SelectorGetTotalEmployees  uint32 = 0x0B000000 // getTotalEmployees()
	SelectorGetEmployeeAtIndex uint32 = 0x0C000000 // getEmployeeAtIndex(uint256)
	SelectorGetEmployeeSalary  uint32 = 0x0D000000 // getEmployeeSalary(address)
	SelectorGrantRole          uint32 = 0x0E000000 // grantRole(uint8,address)
	SelectorRevokeRole         uint32 = 0x0F000000 // revokeRole(uint8,address)
	SelectorHasRole            uint32 = 0x10000000 // hasRole(uint8,address)
	SelectorPause              uint32 = 0x11000000 // pause()
	SelectorUnpause            uint32 = 0x12000000 // unpause()
	SelectorPaused             uint32 = 0x13000000 // paused()
)

// Storage slot prefixes for state mirrored into the host StateDB.
const (
	balanceSlotPrefix = "payroll.balance"
	countSlotKey      = "payroll.employeeCount"
)

// balanceSlot derives the storage slot mirroring [account]'s balance handle.
func balanceSlot(account common.Address) common.Hash {
	h := blake3.New()
	h.Write([]byte(balanceSlotPrefix))
	h.Write(account.Bytes())
	return common.BytesToHash(h.Sum(nil))
}

// countSlot is the storage slot mirroring the active employee count.
var countSlot = common.Hash(blake3.Sum256([]byte(countSlotKey)))

// PayrollContract exposes the salary ledger as a stateful precompile. The
// ledger holds the encrypted state; the contract mirrors balance handles and
// the employee count into the host StateDB so the chain's state commitment
// covers them.
type PayrollContract struct {
	ledger *SalaryLedger
}

// NewPayrollContract wraps [ledger] as a precompile.
func NewPayrollContract(ledger *SalaryLedger) *PayrollContract {
	return &PayrollContract{ledger: ledger}
}

// Ledger returns the underlying salary ledger.
func (c *PayrollContract) Ledger() *SalaryLedger {
	return c.ledger
}

// RequiredGas returns the gas required for the precompile input
func (c *PayrollContract) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return GasRead
	}

	selector := binary.BigEndian.Uint32(input[:4])
	switch selector {
	case SelectorAddEmployee:
		return GasAddEmployee
	case SelectorRemoveEmployee:
		return GasRemove
	case SelectorUpdateSalary:
		return GasUpdate
	case SelectorPaySalary, SelectorPayBonus, SelectorProcessDeduction:
		return GasPay
	case SelectorTransfer, SelectorTransferFrom:
		return GasTransfer
	case SelectorGrantRole, SelectorRevokeRole, SelectorPause, SelectorUnpause:
		return GasAdmin
	default:
		return GasRead
	}
}

// Run executes the payroll precompile
func (c *PayrollContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	gasCost := c.RequiredGas(input)
	if suppliedGas < gasCost {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas = suppliedGas - gasCost

	selector := binary.BigEndian.Uint32(input[:4])
	data := input[4:]

	switch selector {
	case SelectorAddEmployee:
		ret, err = c.runAddEmployee(accessibleState, caller, data, readOnly)
	case SelectorRemoveEmployee:
		ret, err = c.runRemoveEmployee(accessibleState, caller, data, readOnly)
	case SelectorUpdateSalary:
		ret, err = c.runUpdateSalary(caller, data, readOnly)
	case SelectorPaySalary:
		ret, err = c.runPaySalary(accessibleState, caller, data, readOnly)
	case SelectorPayBonus:
		ret, err = c.runPayBonus(accessibleState, caller, data, readOnly)
	case SelectorProcessDeduction:
		ret, err = c.runProcessDeduction(accessibleState, caller, data, readOnly)
	case SelectorTransfer:
		ret, err = c.runTransfer(accessibleState, caller, data, readOnly)
	case SelectorTransferFrom:
		ret, err = c.runTransferFrom(accessibleState, caller, data, readOnly)
	case SelectorBalanceOf:
		ret, err = c.runBalanceOf(data)
	case SelectorIsEmployee:
		ret, err = c.runIsEmployee(data)
	case SelectorGetTotalEmployees:
		ret, err = c.runGetTotalEmployees()
	case SelectorGetEmployeeAtIndex:
		ret, err = c.runGetEmployeeAtIndex(data)
	case SelectorGetEmployeeSalary:
		ret, err = c.runGetEmployeeSalary(data)
	case SelectorGrantRole:
		ret, err = c.runGrantRole(caller, data, readOnly)
	case SelectorRevokeRole:
		ret, err = c.runRevokeRole(caller, data, readOnly)
	case SelectorHasRole:
		ret, err = c.runHasRole(data)
	case SelectorPause:
		ret, err = c.runPause(caller, readOnly)
	case SelectorUnpause:
		ret, err = c.runUnpause(caller, readOnly)
	case SelectorPaused:
		ret, err = c.runPaused()
	default:
		return nil, remainingGas, ErrInvalidInput
	}

	return ret, remainingGas, err
}

// === Argument decoding ===

func decodeAddress(data []byte) common.Address {
	return common.BytesToAddress(data[12:32])
}

func decodeProof(data []byte) [fhe.ProofLen]byte {
	var proof [fhe.ProofLen]byte
	copy(proof[:], data[:fhe.ProofLen])
	return proof
}

func encodeBool(v bool) []byte {
	out := make([]byte, 32)
	if v {
		out[31] = 1
	}
	return out
}

func encodeUint64(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}

// === Mutating handlers ===

func (c *PayrollContract) runAddEmployee(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])
	salary := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])

	if err := c.ledger.AddEmployee(caller, employee, salary, proof); err != nil {
		return nil, err
	}

	c.mirrorCount(state)
	return nil, nil
}

func (c *PayrollContract) runRemoveEmployee(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 32 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])

	if err := c.ledger.RemoveEmployee(caller, employee); err != nil {
		return nil, err
	}

	c.mirrorCount(state)
	return nil, nil
}

func (c *PayrollContract) runUpdateSalary(caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])
	salary := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])

	return nil, c.ledger.UpdateEmployeeSalary(caller, employee, salary, proof)
}

func (c *PayrollContract) runPaySalary(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])
	amount := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])

	if err := c.ledger.PaySalary(caller, employee, amount, proof); err != nil {
		return nil, err
	}

	c.mirrorBalance(state, employee)
	return nil, nil
}

func (c *PayrollContract) runPayBonus(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])
	amount := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])
	reason := string(data[96:])

	if err := c.ledger.PayBonus(caller, employee, amount, proof, reason); err != nil {
		return nil, err
	}

	c.mirrorBalance(state, employee)
	return nil, nil
}

func (c *PayrollContract) runProcessDeduction(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	employee := decodeAddress(data[:32])
	amount := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])
	reason := string(data[96:])

	if err := c.ledger.ProcessDeduction(caller, employee, amount, proof, reason); err != nil {
		return nil, err
	}

	c.mirrorBalance(state, employee)
	return nil, nil
}

func (c *PayrollContract) runTransfer(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	to := decodeAddress(data[:32])
	amount := common.BytesToHash(data[32:64])
	proof := decodeProof(data[64:96])

	if err := c.ledger.Transfer(caller, to, amount, proof); err != nil {
		return nil, err
	}

	c.mirrorBalance(state, caller)
	c.mirrorBalance(state, to)
	return nil, nil
}

func (c *PayrollContract) runTransferFrom(state contract.AccessibleState, caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 96 {
		return nil, ErrInvalidInput
	}

	from := decodeAddress(data[:32])
	to := decodeAddress(data[32:64])
	amount := common.BytesToHash(data[64:96])

	if err := c.ledger.TransferFrom(caller, from, to, amount); err != nil {
		return nil, err
	}

	c.mirrorBalance(state, from)
	c.mirrorBalance(state, to)
	return nil, nil
}

func (c *PayrollContract) runGrantRole(caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 64 {
		return nil, ErrInvalidInput
	}

	role := Role(data[31])
	account := decodeAddress(data[32:64])

	return nil, c.ledger.GrantRole(caller, role, account)
}

func (c *PayrollContract) runRevokeRole(caller common.Address, data []byte, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	if len(data) < 64 {
		return nil, ErrInvalidInput
	}

	role := Role(data[31])
	account := decodeAddress(data[32:64])

	return nil, c.ledger.RevokeRole(caller, role, account)
}

func (c *PayrollContract) runPause(caller common.Address, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	return nil, c.ledger.Pause(caller)
}

func (c *PayrollContract) runUnpause(caller common.Address, readOnly bool) ([]byte, error) {
	if readOnly {
		return nil, ErrReadOnly
	}
	return nil, c.ledger.Unpause(caller)
}

// === View handlers ===

func (c *PayrollContract) runBalanceOf(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, ErrInvalidInput
	}
	handle := c.ledger.BalanceOf(decodeAddress(data[:32]))
	return handle.Bytes(), nil
}

func (c *PayrollContract) runIsEmployee(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, ErrInvalidInput
	}
	return encodeBool(c.ledger.IsEmployee(decodeAddress(data[:32]))), nil
}

func (c *PayrollContract) runGetTotalEmployees() ([]byte, error) {
	return encodeUint64(c.ledger.GetTotalEmployees()), nil
}

func (c *PayrollContract) runGetEmployeeAtIndex(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, ErrInvalidInput
	}
	// Indices above 2^64 can never name an employee; reject them instead of
	// truncating to the low word.
	for _, b := range data[:24] {
		if b != 0 {
			return nil, ErrEmployeeNotFound
		}
	}
	index := binary.BigEndian.Uint64(data[24:32])
	employee, err := c.ledger.GetEmployeeAtIndex(index)
	if err != nil {
		return nil, err
	}
	return common.LeftPadBytes(employee.Bytes(), 32), nil
}

func (c *PayrollContract) runGetEmployeeSalary(data []byte) ([]byte, error) {
	if len(data) < 32 {
		return nil, ErrInvalidInput
	}
	handle, err := c.ledger.GetEmployeeSalary(decodeAddress(data[:32]))
	if err != nil {
		return nil, err
	}
	return handle.Bytes(), nil
}

func (c *PayrollContract) runHasRole(data []byte) ([]byte, error) {
	if len(data) < 64 {
		return nil, ErrInvalidInput
	}
	role := Role(data[31])
	account := decodeAddress(data[32:64])
	return encodeBool(c.ledger.HasRole(role, account)), nil
}

func (c *PayrollContract) runPaused() ([]byte, error) {
	return encodeBool(c.ledger.Paused()), nil
}

// === State mirroring ===

func (c *PayrollContract) mirrorBalance(state contract.AccessibleState, account common.Address) {
	stateDB := state.GetStateDB()
	stateDB.SetState(c.ledger.ContractAddress(), balanceSlot(account), c.ledger.BalanceOf(account))
}

func (c *PayrollContract) mirrorCount(state contract.AccessibleState) {
	stateDB := state.GetStateDB()
	count := common.Hash{}
	binary.BigEndian.PutUint64(count[24:], c.ledger.GetTotalEmployees())
	stateDB.SetState(c.ledger.ContractAddress(), countSlot, count)
}
