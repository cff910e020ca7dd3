// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payroll

import (
	"sync"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/payroll/fhe"
)

// SalaryLedger is the confidential payroll engine. Salaries and balances are
// FHE handles; the ledger never sees a plaintext amount. All mutating entry
// points check pause state first, then the caller's role, then arguments,
// then the input proof, and only then touch encrypted state.
type SalaryLedger struct {
	mu sync.RWMutex

	cop          *fhe.Coprocessor
	contractAddr common.Address

	paused bool
	roles  map[Role]map[common.Address]bool

	// Dense enumeration with O(1) membership and removal. Removal swaps the
	// last entry into the vacated slot, so indices are not stable across
	// removals.
	employeeList  []common.Address
	employeeIndex map[common.Address]int

	salaries map[common.Address]common.Hash
	balances map[common.Address]common.Hash

	events []Event

	now func() uint64
}

// NewSalaryLedger creates a ledger over [cop] for the contract at [addr],
// with [admin] holding the ADMIN role.
func NewSalaryLedger(cop *fhe.Coprocessor, addr common.Address, admin common.Address) *SalaryLedger {
	l := &SalaryLedger{
		cop:          cop,
		contractAddr: addr,
		roles: map[Role]map[common.Address]bool{
			RoleAdmin:   make(map[common.Address]bool),
			RoleHR:      make(map[common.Address]bool),
			RolePayroll: make(map[common.Address]bool),
		},
		employeeIndex: make(map[common.Address]int),
		salaries:      make(map[common.Address]common.Hash),
		balances:      make(map[common.Address]common.Hash),
		now:           func() uint64 { return uint64(time.Now().Unix()) },
	}
	if admin != (common.Address{}) {
		l.roles[RoleAdmin][admin] = true
	}
	return l
}

// ContractAddress returns the address input proofs must be bound to.
func (l *SalaryLedger) ContractAddress() common.Address {
	return l.contractAddr
}

// Coprocessor returns the FHE coprocessor backing this ledger.
func (l *SalaryLedger) Coprocessor() *fhe.Coprocessor {
	return l.cop
}

// === Access control ===

// HasRole reports exact role membership. ADMIN does not implicitly hold HR
// or PAYROLL; gates that accept several roles check each one.
func (l *SalaryLedger) HasRole(role Role, account common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roles[role][account]
}

func (l *SalaryLedger) hasRoleLocked(role Role, account common.Address) bool {
	return l.roles[role][account]
}

// grantInitialAdmin seats the genesis admin during precompile configuration.
// It bypasses the caller check because configuration runs before any admin
// exists.
func (l *SalaryLedger) grantInitialAdmin(account common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roles[RoleAdmin][account] = true
}

// GrantRole grants [role] to [account]. ADMIN only.
func (l *SalaryLedger) GrantRole(caller common.Address, role Role, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	members, ok := l.roles[role]
	if !ok {
		return ErrInvalidRole
	}
	members[account] = true
	return nil
}

// RevokeRole removes [role] from [account]. ADMIN only.
func (l *SalaryLedger) RevokeRole(caller common.Address, role Role, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	members, ok := l.roles[role]
	if !ok {
		return ErrInvalidRole
	}
	delete(members, account)
	return nil
}

// Pause stops all mutating operations. ADMIN only.
func (l *SalaryLedger) Pause(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if l.paused {
		return ErrEnforcedPause
	}
	l.paused = true
	return nil
}

// Unpause resumes mutating operations. ADMIN only.
func (l *SalaryLedger) Unpause(caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if !l.paused {
		return ErrExpectedPause
	}
	l.paused = false
	return nil
}

// Paused reports whether mutations are currently blocked.
func (l *SalaryLedger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// === Employee registry ===

// AddEmployee registers [employee] with an encrypted salary. HR or ADMIN.
// The zero address is rejected as not a valid employee.
func (l *SalaryLedger) AddEmployee(caller, employee common.Address, salary common.Hash, proof [fhe.ProofLen]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RoleHR, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if employee == (common.Address{}) {
		return ErrEmployeeNotFound
	}
	if _, exists := l.employeeIndex[employee]; exists {
		return ErrEmployeeAlreadyExists
	}
	if err := l.cop.VerifyInput(salary, proof, l.contractAddr, caller); err != nil {
		return err
	}

	l.employeeIndex[employee] = len(l.employeeList)
	l.employeeList = append(l.employeeList, employee)
	l.salaries[employee] = salary
	l.cop.Allow(salary, employee)
	l.cop.Allow(salary, caller)

	l.record(Event{Kind: EventEmployeeAdded, Employee: employee, Amount: salary})
	return nil
}

// RemoveEmployee deregisters [employee]. HR or ADMIN. The last entry is
// swapped into the vacated slot, so enumeration order changes. Any
// outstanding balance survives removal.
func (l *SalaryLedger) RemoveEmployee(caller, employee common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RoleHR, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	idx, exists := l.employeeIndex[employee]
	if !exists {
		return ErrEmployeeNotFound
	}

	last := len(l.employeeList) - 1
	if idx != last {
		moved := l.employeeList[last]
		l.employeeList[idx] = moved
		l.employeeIndex[moved] = idx
	}
	l.employeeList = l.employeeList[:last]
	delete(l.employeeIndex, employee)
	delete(l.salaries, employee)

	l.record(Event{Kind: EventEmployeeRemoved, Employee: employee})
	return nil
}

// UpdateEmployeeSalary replaces [employee]'s salary handle. HR or ADMIN.
// The new handle is a fresh assignment, not combined with the old one.
func (l *SalaryLedger) UpdateEmployeeSalary(caller, employee common.Address, salary common.Hash, proof [fhe.ProofLen]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RoleHR, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if _, exists := l.employeeIndex[employee]; !exists {
		return ErrEmployeeNotFound
	}
	if err := l.cop.VerifyInput(salary, proof, l.contractAddr, caller); err != nil {
		return err
	}

	l.salaries[employee] = salary
	l.cop.Allow(salary, employee)
	l.cop.Allow(salary, caller)

	l.record(Event{Kind: EventSalaryUpdated, Employee: employee, Amount: salary})
	return nil
}

// IsEmployee reports whether [account] is an active employee.
func (l *SalaryLedger) IsEmployee(account common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.employeeIndex[account]
	return ok
}

// GetTotalEmployees returns the number of active employees.
func (l *SalaryLedger) GetTotalEmployees() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.employeeList))
}

// GetEmployeeAtIndex returns the employee at [index] in enumeration order.
// Indices are dense in [0, GetTotalEmployees()) but unstable across removals.
func (l *SalaryLedger) GetEmployeeAtIndex(index uint64) (common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.employeeList)) {
		return common.Address{}, ErrEmployeeNotFound
	}
	return l.employeeList[index], nil
}

// GetEmployeeSalary returns the opaque salary handle for an active employee.
func (l *SalaryLedger) GetEmployeeSalary(employee common.Address) (common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.employeeIndex[employee]; !ok {
		return common.Hash{}, ErrEmployeeNotFound
	}
	return l.salaries[employee], nil
}

// === Balance ledger ===

// creditLocked adds [amount] to [account]'s encrypted balance. A first
// credit adopts the amount handle directly.
func (l *SalaryLedger) creditLocked(account common.Address, amount common.Hash) (common.Hash, error) {
	cur, ok := l.balances[account]
	if !ok || cur == fhe.ZeroHandle {
		l.balances[account] = amount
		l.cop.Allow(amount, account)
		return amount, nil
	}

	next, err := l.cop.Add(cur, amount)
	if err != nil {
		return fhe.ZeroHandle, err
	}
	l.balances[account] = next
	l.cop.Allow(next, account)
	return next, nil
}

// debitLocked subtracts [amount] from [account]'s encrypted balance.
// Underflow wraps mod 2^64; plausibility is validated off-chain before the
// amount is submitted.
func (l *SalaryLedger) debitLocked(account common.Address, amount common.Hash) (common.Hash, error) {
	cur, ok := l.balances[account]
	if !ok || cur == fhe.ZeroHandle {
		zero, err := l.cop.Encrypt(0)
		if err != nil {
			return fhe.ZeroHandle, err
		}
		cur = zero
	}

	next, err := l.cop.Sub(cur, amount)
	if err != nil {
		return fhe.ZeroHandle, err
	}
	l.balances[account] = next
	l.cop.Allow(next, account)
	return next, nil
}

// PaySalary credits [amount] to an active employee's balance. PAYROLL or
// ADMIN.
func (l *SalaryLedger) PaySalary(caller, employee common.Address, amount common.Hash, proof [fhe.ProofLen]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RolePayroll, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if _, exists := l.employeeIndex[employee]; !exists {
		return ErrEmployeeNotFound
	}
	if err := l.cop.VerifyInput(amount, proof, l.contractAddr, caller); err != nil {
		return err
	}

	if _, err := l.creditLocked(employee, amount); err != nil {
		return err
	}

	l.record(Event{Kind: EventSalaryPaid, Employee: employee, Amount: amount})
	return nil
}

// PayBonus credits a bonus with a non-empty reason. PAYROLL or ADMIN.
func (l *SalaryLedger) PayBonus(caller, employee common.Address, amount common.Hash, proof [fhe.ProofLen]byte, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RolePayroll, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if _, exists := l.employeeIndex[employee]; !exists {
		return ErrEmployeeNotFound
	}
	if reason == "" {
		return ErrEmptyReason
	}
	if err := l.cop.VerifyInput(amount, proof, l.contractAddr, caller); err != nil {
		return err
	}

	if _, err := l.creditLocked(employee, amount); err != nil {
		return err
	}

	l.record(Event{Kind: EventBonusPaid, Employee: employee, Amount: amount, Reason: reason})
	return nil
}

// ProcessDeduction debits an amount with a non-empty reason. PAYROLL or
// ADMIN.
func (l *SalaryLedger) ProcessDeduction(caller, employee common.Address, amount common.Hash, proof [fhe.ProofLen]byte, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RolePayroll, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if _, exists := l.employeeIndex[employee]; !exists {
		return ErrEmployeeNotFound
	}
	if reason == "" {
		return ErrEmptyReason
	}
	if err := l.cop.VerifyInput(amount, proof, l.contractAddr, caller); err != nil {
		return err
	}

	if _, err := l.debitLocked(employee, amount); err != nil {
		return err
	}

	l.record(Event{Kind: EventDeductionProcessed, Employee: employee, Amount: amount, Reason: reason})
	return nil
}

// transferableLocked reports whether [account] may receive a transfer: an
// active employee, or an account already holding a balance.
func (l *SalaryLedger) transferableLocked(account common.Address) bool {
	if _, ok := l.employeeIndex[account]; ok {
		return true
	}
	bal, ok := l.balances[account]
	return ok && bal != fhe.ZeroHandle
}

// Transfer moves an encrypted amount from the caller to [to]. The caller
// must hold a balance; the recipient must be an active employee or an
// existing balance holder. Either side lacking eligibility fails with
// ErrEmployeeNotFound. Debit and credit happen atomically.
func (l *SalaryLedger) Transfer(caller, to common.Address, amount common.Hash, proof [fhe.ProofLen]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if bal, ok := l.balances[caller]; !ok || bal == fhe.ZeroHandle {
		return ErrEmployeeNotFound
	}
	if !l.transferableLocked(to) {
		return ErrEmployeeNotFound
	}
	if err := l.cop.VerifyInput(amount, proof, l.contractAddr, caller); err != nil {
		return err
	}

	if _, err := l.debitLocked(caller, amount); err != nil {
		return err
	}
	if _, err := l.creditLocked(to, amount); err != nil {
		return err
	}

	l.record(Event{Kind: EventTransfer, From: caller, To: to, Amount: amount})
	return nil
}

// TransferFrom moves an already-verified encrypted amount between two
// accounts. PAYROLL or ADMIN; no input proof, the amount handle must name a
// stored ciphertext.
func (l *SalaryLedger) TransferFrom(caller, from, to common.Address, amount common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return ErrEnforcedPause
	}
	if !l.hasRoleLocked(RolePayroll, caller) && !l.hasRoleLocked(RoleAdmin, caller) {
		return ErrUnauthorizedOperation
	}
	if bal, ok := l.balances[from]; !ok || bal == fhe.ZeroHandle {
		return ErrEmployeeNotFound
	}
	if !l.transferableLocked(to) {
		return ErrEmployeeNotFound
	}
	if !l.cop.Has(amount) {
		return fhe.ErrUnknownHandle
	}

	if _, err := l.debitLocked(from, amount); err != nil {
		return err
	}
	if _, err := l.creditLocked(to, amount); err != nil {
		return err
	}

	l.record(Event{Kind: EventTransfer, From: from, To: to, Amount: amount})
	return nil
}

// BalanceOf returns the opaque balance handle for [account]. The zero handle
// means no balance has ever been credited.
func (l *SalaryLedger) BalanceOf(account common.Address) common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// === Journal ===

func (l *SalaryLedger) record(ev Event) {
	ev.Timestamp = l.now()
	l.events = append(l.events, ev)
}

// Events returns a snapshot of the ledger journal.
func (l *SalaryLedger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
