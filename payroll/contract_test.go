// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payroll

import (
	"encoding/binary"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/payroll/contract"
	"github.com/luxfi/payroll/fhe"
)

func newTestContract(t *testing.T) (*PayrollContract, contract.AccessibleState) {
	t.Helper()
	ledger := NewSalaryLedger(fhe.NewCoprocessor(), testContractAddr, admin)
	require.NoError(t, ledger.GrantRole(admin, RoleHR, hrManager))
	require.NoError(t, ledger.GrantRole(admin, RolePayroll, payrollOp))
	return NewPayrollContract(ledger), contract.NewTestAccessibleState()
}

func packInput(selector uint32, args ...[]byte) []byte {
	input := make([]byte, 4)
	binary.BigEndian.PutUint32(input, selector)
	for _, arg := range args {
		input = append(input, arg...)
	}
	return input
}

func padAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func TestRunRejectsShortInput(t *testing.T) {
	c, state := newTestContract(t)

	_, _, err := c.Run(state, admin, testContractAddr, []byte{0x01}, GasRead, false)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRunRejectsUnknownSelector(t *testing.T) {
	c, state := newTestContract(t)

	input := packInput(0xFF000000)
	_, remaining, err := c.Run(state, admin, testContractAddr, input, GasRead, false)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, uint64(0), remaining)
}

func TestRunChargesGas(t *testing.T) {
	c, state := newTestContract(t)

	handle, proof, err := c.Ledger().Coprocessor().CreateEncryptedInput(testContractAddr, hrManager, 5000)
	require.NoError(t, err)
	input := packInput(SelectorAddEmployee, padAddress(alice), handle.Bytes(), proof[:])

	require.Equal(t, GasAddEmployee, c.RequiredGas(input))

	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasAddEmployee-1, false)
	require.ErrorIs(t, err, ErrInsufficientGas)

	_, remaining, err := c.Run(state, hrManager, testContractAddr, input, GasAddEmployee+500, false)
	require.NoError(t, err)
	require.Equal(t, uint64(500), remaining)
}

func TestRunReadOnlyGuards(t *testing.T) {
	c, state := newTestContract(t)

	mutating := [][]byte{
		packInput(SelectorAddEmployee, make([]byte, 96)),
		packInput(SelectorRemoveEmployee, make([]byte, 32)),
		packInput(SelectorUpdateSalary, make([]byte, 96)),
		packInput(SelectorPaySalary, make([]byte, 96)),
		packInput(SelectorPayBonus, make([]byte, 96)),
		packInput(SelectorProcessDeduction, make([]byte, 96)),
		packInput(SelectorTransfer, make([]byte, 96)),
		packInput(SelectorTransferFrom, make([]byte, 96)),
		packInput(SelectorGrantRole, make([]byte, 64)),
		packInput(SelectorRevokeRole, make([]byte, 64)),
		packInput(SelectorPause),
		packInput(SelectorUnpause),
	}

	for _, input := range mutating {
		_, _, err := c.Run(state, admin, testContractAddr, input, GasTransfer, true)
		require.ErrorIs(t, err, ErrReadOnly)
	}
}

func TestRunEmployeeLifecycle(t *testing.T) {
	c, state := newTestContract(t)
	cop := c.Ledger().Coprocessor()

	handle, proof, err := cop.CreateEncryptedInput(testContractAddr, hrManager, 5000)
	require.NoError(t, err)
	input := packInput(SelectorAddEmployee, padAddress(alice), handle.Bytes(), proof[:])
	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasAddEmployee, false)
	require.NoError(t, err)

	// isEmployee
	ret, _, err := c.Run(state, outsider, testContractAddr, packInput(SelectorIsEmployee, padAddress(alice)), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(1), ret[31])

	// getTotalEmployees
	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorGetTotalEmployees), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, uint64(1), binary.BigEndian.Uint64(ret[24:]))

	// getEmployeeAtIndex
	index := make([]byte, 32)
	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorGetEmployeeAtIndex, index), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, alice, common.BytesToAddress(ret[12:]))

	// getEmployeeSalary returns the opaque handle
	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorGetEmployeeSalary, padAddress(alice)), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, handle, common.BytesToHash(ret))

	// removeEmployee
	input = packInput(SelectorRemoveEmployee, padAddress(alice))
	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasRemove, false)
	require.NoError(t, err)

	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorIsEmployee, padAddress(alice)), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(0), ret[31])
}

func TestRunEmployeeAtIndexRejectsOversizedIndex(t *testing.T) {
	c, state := newTestContract(t)
	cop := c.Ledger().Coprocessor()

	handle, proof, err := cop.CreateEncryptedInput(testContractAddr, hrManager, 5000)
	require.NoError(t, err)
	input := packInput(SelectorAddEmployee, padAddress(alice), handle.Bytes(), proof[:])
	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasAddEmployee, false)
	require.NoError(t, err)

	// An index word of 2^64 truncates to zero in the low word. It must not
	// alias to the employee at index 0.
	index := make([]byte, 32)
	index[23] = 1
	_, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorGetEmployeeAtIndex, index), GasRead, true)
	require.ErrorIs(t, err, ErrEmployeeNotFound)
}

func TestRunPaymentFlow(t *testing.T) {
	c, state := newTestContract(t)
	cop := c.Ledger().Coprocessor()

	handle, proof, err := cop.CreateEncryptedInput(testContractAddr, hrManager, 5000)
	require.NoError(t, err)
	input := packInput(SelectorAddEmployee, padAddress(alice), handle.Bytes(), proof[:])
	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasAddEmployee, false)
	require.NoError(t, err)

	// paySalary
	amount, amtProof, err := cop.CreateEncryptedInput(testContractAddr, payrollOp, 5000)
	require.NoError(t, err)
	input = packInput(SelectorPaySalary, padAddress(alice), amount.Bytes(), amtProof[:])
	_, _, err = c.Run(state, payrollOp, testContractAddr, input, GasPay, false)
	require.NoError(t, err)

	// payBonus with trailing reason string
	amount, amtProof, err = cop.CreateEncryptedInput(testContractAddr, payrollOp, 2000)
	require.NoError(t, err)
	input = packInput(SelectorPayBonus, padAddress(alice), amount.Bytes(), amtProof[:], []byte("spot award"))
	_, _, err = c.Run(state, payrollOp, testContractAddr, input, GasPay, false)
	require.NoError(t, err)

	// processDeduction
	amount, amtProof, err = cop.CreateEncryptedInput(testContractAddr, payrollOp, 700)
	require.NoError(t, err)
	input = packInput(SelectorProcessDeduction, padAddress(alice), amount.Bytes(), amtProof[:], []byte("401k"))
	_, _, err = c.Run(state, payrollOp, testContractAddr, input, GasPay, false)
	require.NoError(t, err)

	// balanceOf returns a handle decrypting to 5000 + 2000 - 700
	ret, _, err := c.Run(state, alice, testContractAddr, packInput(SelectorBalanceOf, padAddress(alice)), GasRead, true)
	require.NoError(t, err)
	value, err := cop.Decrypt(common.BytesToHash(ret))
	require.NoError(t, err)
	require.Equal(t, uint64(6300), value)

	// Empty bonus reason is rejected.
	amount, amtProof, err = cop.CreateEncryptedInput(testContractAddr, payrollOp, 1)
	require.NoError(t, err)
	input = packInput(SelectorPayBonus, padAddress(alice), amount.Bytes(), amtProof[:])
	_, _, err = c.Run(state, payrollOp, testContractAddr, input, GasPay, false)
	require.ErrorIs(t, err, ErrEmptyReason)
}

func TestRunStateMirroring(t *testing.T) {
	c, state := newTestContract(t)
	cop := c.Ledger().Coprocessor()
	stateDB := state.GetStateDB()

	handle, proof, err := cop.CreateEncryptedInput(testContractAddr, hrManager, 5000)
	require.NoError(t, err)
	input := packInput(SelectorAddEmployee, padAddress(alice), handle.Bytes(), proof[:])
	_, _, err = c.Run(state, hrManager, testContractAddr, input, GasAddEmployee, false)
	require.NoError(t, err)

	// Employee count mirrored into the StateDB.
	count := stateDB.GetState(testContractAddr, countSlot)
	require.Equal(t, uint64(1), binary.BigEndian.Uint64(count[24:]))

	amount, amtProof, err := cop.CreateEncryptedInput(testContractAddr, payrollOp, 5000)
	require.NoError(t, err)
	input = packInput(SelectorPaySalary, padAddress(alice), amount.Bytes(), amtProof[:])
	_, _, err = c.Run(state, payrollOp, testContractAddr, input, GasPay, false)
	require.NoError(t, err)

	// Balance handle mirrored into the StateDB.
	mirrored := stateDB.GetState(testContractAddr, balanceSlot(alice))
	require.Equal(t, c.Ledger().BalanceOf(alice), mirrored)
	require.NotEqual(t, common.Hash{}, mirrored)
}

func TestRunRoleAndPauseSelectors(t *testing.T) {
	c, state := newTestContract(t)

	// grantRole PAYROLL to bob
	role := make([]byte, 32)
	role[31] = byte(RolePayroll)
	input := packInput(SelectorGrantRole, role, padAddress(bob))
	_, _, err := c.Run(state, admin, testContractAddr, input, GasAdmin, false)
	require.NoError(t, err)

	ret, _, err := c.Run(state, outsider, testContractAddr, packInput(SelectorHasRole, role, padAddress(bob)), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(1), ret[31])

	// revokeRole
	input = packInput(SelectorRevokeRole, role, padAddress(bob))
	_, _, err = c.Run(state, admin, testContractAddr, input, GasAdmin, false)
	require.NoError(t, err)

	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorHasRole, role, padAddress(bob)), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(0), ret[31])

	// pause / paused / unpause
	_, _, err = c.Run(state, admin, testContractAddr, packInput(SelectorPause), GasAdmin, false)
	require.NoError(t, err)

	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorPaused), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(1), ret[31])

	_, _, err = c.Run(state, admin, testContractAddr, packInput(SelectorUnpause), GasAdmin, false)
	require.NoError(t, err)

	ret, _, err = c.Run(state, outsider, testContractAddr, packInput(SelectorPaused), GasRead, true)
	require.NoError(t, err)
	require.Equal(t, byte(0), ret[31])
}

func TestModuleRegistration(t *testing.T) {
	require.Equal(t, ConfigKey, Module.ConfigKey)
	require.Equal(t, ContractAddress, Module.Address)
	require.NotNil(t, Module.Contract)

	cfg := Module.Configurator.MakeConfig()
	require.Equal(t, ConfigKey, cfg.Key())
	require.False(t, cfg.IsDisabled())
	require.True(t, cfg.Equal(&Config{}))
	require.False(t, cfg.Equal(&Config{InitialAdmin: alice}))
}

func TestConfigureSeatsInitialAdmin(t *testing.T) {
	stateDB := contract.NewTestStateDB()

	err := Module.Configurator.Configure(nil, &Config{InitialAdmin: admin}, stateDB, &contract.TestBlockContext{})
	require.NoError(t, err)

	require.True(t, PayrollPrecompile.Ledger().HasRole(RoleAdmin, admin))
	require.True(t, stateDB.Exist(ContractAddress))
}
