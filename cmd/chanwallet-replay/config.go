// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/chanwallet/netparams"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "chanwallet-replay.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "chanwallet-replay.log"
	defaultDBFilename     = "replay.db"
	defaultAccount        = "@replay:local"
	defaultDeviceID       = "replay"
)

var (
	chanwalletHomeDir = btcutil.AppDataDir("chanwallet", false)
	defaultConfigFile = filepath.Join(
		chanwalletHomeDir, defaultConfigFilename,
	)
	defaultDataDir = chanwalletHomeDir
	defaultLogDir  = filepath.Join(chanwalletHomeDir, defaultLogDirname)
)

// config defines the configuration options for the replay tool.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string `short:"b" long:"datadir" description:"Directory to store the replayed projection database"`
	TestNet     bool   `long:"testnet" description:"Use the test network (default mainnet)"`
	SigNet      bool   `long:"signet" description:"Use the signet test network (default mainnet)"`
	RegTest     bool   `long:"regtest" description:"Use the regression test network (default mainnet)"`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      string `long:"logdir" description:"Directory to log output"`

	// Replay options.
	Account     string `long:"account" description:"Account id whose events are treated as locally authored"`
	DeviceID    string `long:"deviceid" description:"Device id used to tag backups"`
	EventsFile  string `short:"e" long:"events" description:"Path to a JSON lines export of room events to replay"`
	RestoreFile string `long:"restore" description:"Path to an encrypted backup file to restore before replaying"`
	DumpState   bool   `long:"dumpstate" description:"Dump the folded projections after the replay finishes"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified
//     options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, netparams.Params, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		Account:    defaultAccount,
		DeviceID:   defaultDeviceID,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok &&
			e.Type == flags.ErrHelp {

			os.Exit(0)
		}
		return nil, netparams.Params{}, err
	}

	appName := filepath.Base(os.Args[0])
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, version())
		os.Exit(0)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			return nil, netparams.Params{}, err
		}
		// Missing config files are only an error when one was
		// explicitly given.
		if preCfg.ConfigFile != defaultConfigFile {
			return nil, netparams.Params{}, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok &&
			e.Type == flags.ErrHelp {

			os.Exit(0)
		}
		return nil, netparams.Params{}, err
	}

	// Multiple networks can't be selected simultaneously.
	activeNet := netparams.MainNetParams
	numNets := 0
	if cfg.TestNet {
		activeNet = netparams.TestNet3Params
		numNets++
	}
	if cfg.SigNet {
		activeNet = netparams.SigNetParams
		numNets++
	}
	if cfg.RegTest {
		activeNet = netparams.RegressionNetParams
		numNets++
	}
	if numNets > 1 {
		err := fmt.Errorf("%s: the testnet, signet, and regtest "+
			"params may not be used together -- choose one", appName)
		fmt.Fprintln(os.Stderr, err)
		return nil, netparams.Params{}, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.DataDir = filepath.Join(cfg.DataDir, activeNet.Name)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Name)

	// Initialize log rotation.  After it is initialized, it is safe to
	// use logging functions of this package.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", appName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, netparams.Params{}, err
	}

	if cfg.EventsFile == "" && cfg.RestoreFile == "" {
		err := fmt.Errorf("%s: nothing to do -- specify --events, "+
			"--restore, or both", appName)
		fmt.Fprintln(os.Stderr, err)
		return nil, netparams.Params{}, err
	}
	if cfg.EventsFile != "" {
		cfg.EventsFile = cleanAndExpandPath(cfg.EventsFile)
	}
	if cfg.RestoreFile != "" {
		cfg.RestoreFile = cleanAndExpandPath(cfg.RestoreFile)
	}

	return &cfg, activeNet, nil
}
