// Package main defines the proof-of-access validator server for the hive
// storage network. A validator holds persistent sessions to storage agents,
// issues storage challenges against contracted content, verifies the returned
// proofs, and settles earned rewards on the hive ledger.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/Dhenz14/HivePoA-sub000/shared/cmd"
	"github.com/Dhenz14/HivePoA-sub000/shared/logutil"
	"github.com/Dhenz14/HivePoA-sub000/shared/version"
	"github.com/Dhenz14/HivePoA-sub000/validator/flags"
	"github.com/Dhenz14/HivePoA-sub000/validator/node"
	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startValidator(cliCtx *cli.Context) error {
	validator, err := node.NewValidatorNode(cliCtx)
	if err != nil {
		return err
	}
	validator.Start()
	return nil
}

var appFlags = []cli.Flag{
	flags.ValidatorAccountFlag,
	flags.HiveEndpointFlag,
	flags.WalletEndpointFlag,
	flags.IPFSAPIFlag,
	flags.ChannelHostFlag,
	flags.ChannelPortFlag,
	flags.RPCHost,
	flags.RPCPort,
	flags.RPCAllowedOriginsFlag,
	flags.MonitoringPortFlag,
	flags.BroadcastResultsFlag,
	cmd.MinimalConfigFlag,
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.MonitoringHostFlag,
	cmd.DisableMonitoringFlag,
	cmd.MaxGoroutines,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.ConfigFileFlag,
	cmd.PoAConfigFileFlag,
	cmd.BoltMMapInitialSizeFlag,
	cmd.EnableBackupWebhookFlag,
	cmd.BackupWebhookOutputDir,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "poa-validator"
	app.Usage = `launches a proof-of-access validator that challenges storage agents over the hive network.`
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startValidator
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
