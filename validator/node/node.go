// Package node is the main process which handles the lifecycle of
// the runtime services in a proof-of-access validator, gracefully shutting
// everything down upon close.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/Dhenz14/HivePoA-sub000/shared"
	"github.com/Dhenz14/HivePoA-sub000/shared/backuputil"
	"github.com/Dhenz14/HivePoA-sub000/shared/cmd"
	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/shared/prometheus"
	"github.com/Dhenz14/HivePoA-sub000/shared/tracing"
	"github.com/Dhenz14/HivePoA-sub000/shared/version"
	"github.com/Dhenz14/HivePoA-sub000/validator/channel"
	"github.com/Dhenz14/HivePoA-sub000/validator/contracts"
	"github.com/Dhenz14/HivePoA-sub000/validator/db"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/flags"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/Dhenz14/HivePoA-sub000/validator/ipfs"
	"github.com/Dhenz14/HivePoA-sub000/validator/refindex"
	"github.com/Dhenz14/HivePoA-sub000/validator/reputation"
	"github.com/Dhenz14/HivePoA-sub000/validator/rewards"
	"github.com/Dhenz14/HivePoA-sub000/validator/rpc"
	"github.com/Dhenz14/HivePoA-sub000/validator/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

// ValidatorNode defines an instance of a proof-of-access validator that
// manages the entire lifecycle of services attached to it issuing storage
// challenges against the agent fleet.
type ValidatorNode struct {
	cliCtx   *cli.Context
	services *shared.ServiceRegistry // Lifecycle and service store.
	db       iface.ValidatorDB
	lock     sync.RWMutex
	stop     chan struct{} // Channel to wait for termination notifications.
}

// NewValidatorNode creates a new validator node from CLI configuration: it
// opens the database, dials the external capabilities, and registers every
// runtime service in dependency order.
func NewValidatorNode(cliCtx *cli.Context) (*ValidatorNode, error) {
	if err := tracing.Setup(
		"poa-validator", // service name
		cliCtx.String(cmd.TracingProcessNameFlag.Name),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	registry := shared.NewServiceRegistry()
	node := &ValidatorNode{
		cliCtx:   cliCtx,
		services: registry,
		stop:     make(chan struct{}),
	}

	cmd.ConfigureValidator(cliCtx)

	if cliCtx.IsSet(cmd.PoAConfigFileFlag.Name) {
		params.LoadPoAConfigFile(cliCtx.String(cmd.PoAConfigFileFlag.Name))
	}

	dataDir := cliCtx.String(cmd.DataDirFlag.Name)
	if dataDir == "" {
		dataDir = cmd.DefaultDataDir()
		if dataDir == "" {
			log.Fatal(
				"Could not determine your system's HOME path, please specify a --datadir you wish " +
					"to use for your validator data",
			)
		}
	}
	clearFlag := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearFlag := cliCtx.Bool(cmd.ForceClearDB.Name)
	if clearFlag || forceClearFlag {
		if err := clearDB(dataDir, forceClearFlag); err != nil {
			return nil, err
		}
	}
	log.WithField("databasePath", dataDir).Info("Checking DB")
	valDB, err := db.NewDB(dataDir, &kv.Config{
		InitialMMapSize: cliCtx.Int(cmd.BoltMMapInitialSizeFlag.Name),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database in dir %s", dataDir)
	}
	node.db = valDB

	validatorAccount := cliCtx.String(flags.ValidatorAccountFlag.Name)

	ledger := hive.Disabled()
	if endpoint := cliCtx.String(flags.HiveEndpointFlag.Name); endpoint != "" {
		client, err := hive.NewClient(
			context.Background(),
			endpoint,
			cliCtx.String(flags.WalletEndpointFlag.Name),
			validatorAccount,
		)
		if err != nil {
			return nil, errors.Wrap(err, "could not configure the hive ledger client")
		}
		ledger = client
	}

	store, err := ipfs.NewClient(cliCtx.String(flags.IPFSAPIFlag.Name))
	if err != nil {
		return nil, errors.Wrap(err, "could not configure the content store client")
	}

	refs, err := refindex.New(valDB, store)
	if err != nil {
		return nil, errors.Wrap(err, "could not build the reference index")
	}
	manager := contracts.NewManager(&contracts.Config{
		DB:               valDB,
		Ledger:           ledger,
		ValidatorAccount: validatorAccount,
	})
	payouts := rewards.New(&rewards.Config{
		DB:               valDB,
		Ledger:           ledger,
		Contracts:        manager,
		ValidatorAccount: validatorAccount,
	})
	policy := reputation.New(&reputation.Config{
		DB:               valDB,
		Ledger:           ledger,
		ValidatorAccount: validatorAccount,
		BroadcastResults: cliCtx.Bool(flags.BroadcastResultsFlag.Name),
	})

	if err := node.registerHiveService(ledger, validatorAccount); err != nil {
		return nil, err
	}
	if err := node.registerChannelService(ledger, policy, validatorAccount); err != nil {
		return nil, err
	}
	if err := node.registerSchedulerService(store, refs, manager, payouts, policy, validatorAccount); err != nil {
		return nil, err
	}
	if err := node.registerRPCService(payouts, policy, validatorAccount); err != nil {
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheusService(); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// Start every service attached to the validator node.
func (s *ValidatorNode) Start() {
	s.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
	}).Info("Starting proof-of-access validator node")

	s.services.StartAll()

	stop := s.stop
	s.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go s.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic.")
			}
		}
		panic("Panic closing the validator node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (s *ValidatorNode) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.services.StopAll()
	if err := s.db.Close(); err != nil {
		log.WithError(err).Error("Could not close database")
	}
	log.Info("Stopping proof-of-access validator")

	close(s.stop)
}

func (s *ValidatorNode) registerPrometheusService() error {
	var additionalHandlers []prometheus.Handler
	if s.cliCtx.IsSet(cmd.EnableBackupWebhookFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backuputil.BackupHandler(s.db, s.cliCtx.String(cmd.BackupWebhookOutputDir.Name)),
			},
		)
	}
	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", s.cliCtx.String(cmd.MonitoringHostFlag.Name), s.cliCtx.Int(flags.MonitoringPortFlag.Name)),
		s.services,
		additionalHandlers...,
	)
	logrus.AddHook(prometheus.NewLogrusCollector())
	return s.services.RegisterService(service)
}

func (s *ValidatorNode) registerHiveService(ledger hive.Ledger, validatorAccount string) error {
	service := hive.New(context.Background(), &hive.Config{
		Ledger:           ledger,
		ValidatorAccount: validatorAccount,
	})
	return s.services.RegisterService(service)
}

func (s *ValidatorNode) registerChannelService(ledger hive.Ledger, policy *reputation.Policy, validatorAccount string) error {
	service := channel.New(context.Background(), &channel.Config{
		Host:             s.cliCtx.String(flags.ChannelHostFlag.Name),
		Port:             s.cliCtx.Int(flags.ChannelPortFlag.Name),
		DB:               s.db,
		Ledger:           ledger,
		ValidatorAccount: validatorAccount,
		Bans:             policy,
		MaxRoutines:      s.cliCtx.Int(cmd.MaxGoroutines.Name),
	})
	return s.services.RegisterService(service)
}

func (s *ValidatorNode) registerSchedulerService(
	store ipfs.ContentStore,
	refs *refindex.Index,
	manager *contracts.Manager,
	payouts *rewards.Accumulator,
	policy *reputation.Policy,
	validatorAccount string,
) error {
	var channelService *channel.Service
	if err := s.services.FetchService(&channelService); err != nil {
		return err
	}
	var hiveService *hive.Service
	if err := s.services.FetchService(&hiveService); err != nil {
		return err
	}
	service := scheduler.New(context.Background(), &scheduler.Config{
		DB:               s.db,
		Dispatcher:       channelService,
		Contracts:        manager,
		Rewards:          payouts,
		Reputation:       policy,
		Refs:             refs,
		Store:            store,
		Digests:          hiveService,
		ValidatorAccount: validatorAccount,
	})
	return s.services.RegisterService(service)
}

func (s *ValidatorNode) registerRPCService(payouts *rewards.Accumulator, policy *reputation.Policy, validatorAccount string) error {
	var channelService *channel.Service
	if err := s.services.FetchService(&channelService); err != nil {
		return err
	}
	var hiveService *hive.Service
	if err := s.services.FetchService(&hiveService); err != nil {
		return err
	}
	service := rpc.New(context.Background(), &rpc.Config{
		Host:             s.cliCtx.String(flags.RPCHost.Name),
		Port:             s.cliCtx.Int(flags.RPCPort.Name),
		AllowedOrigins:   strings.Split(s.cliCtx.String(flags.RPCAllowedOriginsFlag.Name), ","),
		DB:               s.db,
		Channel:          channelService,
		Rewards:          payouts,
		Reputation:       policy,
		Digests:          hiveService,
		ValidatorAccount: validatorAccount,
	})
	return s.services.RegisterService(service)
}

func clearDB(dataDir string, force bool) error {
	var err error
	clearDBConfirmed := force

	if !force {
		actionText := "This will delete the validator's proof-of-access database stored in your data directory. " +
			"Challenge history, contracts, and agent records will be lost - do you want to proceed? (Y/N)"
		deniedText := "The database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return errors.Wrapf(err, "Could not clear DB in dir %s", dataDir)
		}
	}

	if clearDBConfirmed {
		valDB, err := db.NewDB(dataDir, nil)
		if err != nil {
			return errors.Wrapf(err, "Could not create DB in dir %s", dataDir)
		}

		log.Warning("Removing database")
		if err := valDB.ClearDB(); err != nil {
			return errors.Wrapf(err, "Could not clear DB in dir %s", dataDir)
		}
		if err := valDB.Close(); err != nil {
			return errors.Wrapf(err, "Could not close DB in dir %s", dataDir)
		}
	}

	return nil
}
