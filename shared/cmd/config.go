package cmd

import (
	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "cmd-config")

// Flags is a struct to represent which features the client will perform on runtime.
type Flags struct {
	// Configuration related flags.
	MinimalConfig       bool // MinimalConfig uses the minimal preset.
	BoltMMapInitialSize int  // BoltMMapInitialSize for the bolt databases.
}

var sharedConfig *Flags

// Get retrieves the shared config.
func Get() *Flags {
	if sharedConfig == nil {
		return &Flags{}
	}
	return sharedConfig
}

// Init sets the global config equal to the config that is passed in.
func Init(c *Flags) {
	sharedConfig = c
}

// InitWithReset sets the global config and returns a function that is used to reset the configuration.
func InitWithReset(c *Flags) func() {
	resetFunc := func() {
		Init(&Flags{})
	}
	Init(c)
	return resetFunc
}

// ConfigureValidator sets the global config based
// on what flags are enabled for the validator client.
func ConfigureValidator(ctx *cli.Context) {
	cfg := Get()
	if ctx.Bool(MinimalConfigFlag.Name) {
		log.Warn("Using minimal config")
		cfg.MinimalConfig = true
		params.UseMinimalConfig()
	}
	if ctx.IsSet(BoltMMapInitialSizeFlag.Name) {
		log.Warnf("Setting initial size of bolt's mmap to %d", ctx.Int(BoltMMapInitialSizeFlag.Name))
	}
	cfg.BoltMMapInitialSize = ctx.Int(BoltMMapInitialSizeFlag.Name)
	Init(cfg)
}
