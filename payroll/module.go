// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payroll

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/payroll/contract"
	"github.com/luxfi/payroll/fhe"
	"github.com/luxfi/payroll/modules"
	"github.com/luxfi/payroll/precompileconfig"
	"github.com/luxfi/payroll/registry"
)

var _ contract.Configurator = (*configurator)(nil)
var _ contract.StatefulPrecompiledContract = (*PayrollContract)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "payrollConfig"

// ContractAddress is the payroll ledger precompile address (LP-4250).
var ContractAddress = registry.PayrollAddress

// SharedCoprocessor is the FHE coprocessor backing the ledger. The decryption
// gateway must use the same instance so ACL grants made by the ledger are
// visible to it.
var SharedCoprocessor = fhe.NewCoprocessor()

// PayrollPrecompile is the singleton instance
var PayrollPrecompile = NewPayrollContract(
	NewSalaryLedger(SharedCoprocessor, ContractAddress, common.Address{}),
)

// Module is the precompile module
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     PayrollPrecompile,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T: %v", &Config{}, cfg, cfg)
	}

	if config.InitialAdmin != (common.Address{}) {
		PayrollPrecompile.ledger.grantInitialAdmin(config.InitialAdmin)
	}

	if !state.Exist(ContractAddress) {
		state.CreateAccount(ContractAddress)
	}

	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade      precompileconfig.Upgrade `json:"upgrade,omitempty"`
	InitialAdmin common.Address           `json:"initialAdmin,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade) &&
		c.InitialAdmin == other.InitialAdmin
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	return nil
}
