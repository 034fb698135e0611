// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params groups the chain parameters for one network together with the
// canonical name the coordination protocol uses on the wire.
type Params struct {
	*chaincfg.Params
	ChainName string
}

// MainNetParams contains parameters for the main network.
var MainNetParams = Params{
	Params:    &chaincfg.MainNetParams,
	ChainName: "MAIN",
}

// TestNet3Params contains parameters for the test network (version 3).
var TestNet3Params = Params{
	Params:    &chaincfg.TestNet3Params,
	ChainName: "TESTNET",
}

// SigNetParams contains parameters for the default signet.
var SigNetParams = Params{
	Params:    &chaincfg.SigNetParams,
	ChainName: "SIGNET",
}

// RegressionNetParams contains parameters for the regression test network.
var RegressionNetParams = Params{
	Params:    &chaincfg.RegressionNetParams,
	ChainName: "REGTEST",
}

// SimNetParams contains parameters for the simulation test network.
var SimNetParams = Params{
	Params:    &chaincfg.SimNetParams,
	ChainName: "SIMNET",
}

// ForChain resolves a wire chain name to its network parameters.
func ForChain(name string) (Params, error) {
	switch name {
	case MainNetParams.ChainName:
		return MainNetParams, nil
	case TestNet3Params.ChainName:
		return TestNet3Params, nil
	case SigNetParams.ChainName:
		return SigNetParams, nil
	case RegressionNetParams.ChainName:
		return RegressionNetParams, nil
	case SimNetParams.ChainName:
		return SimNetParams, nil
	}
	return Params{}, fmt.Errorf("unknown chain %q", name)
}
