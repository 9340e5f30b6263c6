package node

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/shared/cmd"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	"github.com/Dhenz14/HivePoA-sub000/validator/channel"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/Dhenz14/HivePoA-sub000/validator/rpc"
	"github.com/Dhenz14/HivePoA-sub000/validator/scheduler"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/urfave/cli/v2"
)

func nodeFlagSet(t *testing.T, dataDir string) *flag.FlagSet {
	set := flag.NewFlagSet("test", 0)
	set.String("datadir", dataDir, "the node data directory")
	set.String("verbosity", "debug", "log level")
	set.String("validator-account", "validator.one", "hive account issuing challenges")
	set.String("ipfs-api", "http://127.0.0.1:5001", "content store api address")
	// The logrus hook registers its counter vec globally, so building two
	// nodes in one test binary needs monitoring off.
	set.Bool(cmd.DisableMonitoringFlag.Name, true, "")
	return set
}

// Test that the validator node can build with default flag values.
func TestNode_Builds(t *testing.T) {
	app := cli.App{}
	set := nodeFlagSet(t, filepath.Join(t.TempDir(), "datadir"))
	ctx := cli.NewContext(&app, set, nil)

	node, err := NewValidatorNode(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, node.db.Close())
	}()

	var channelService *channel.Service
	require.NoError(t, node.services.FetchService(&channelService))
	var hiveService *hive.Service
	require.NoError(t, node.services.FetchService(&hiveService))
	var schedulerService *scheduler.Service
	require.NoError(t, node.services.FetchService(&schedulerService))
	var rpcService *rpc.Service
	require.NoError(t, node.services.FetchService(&rpcService))
}

func TestClearDB(t *testing.T) {
	hook := logtest.NewGlobal()
	dataDir := filepath.Join(t.TempDir(), "datadir")

	valDB, err := kv.NewKVStore(dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, valDB.SaveAgent(context.Background(), &types.Agent{ID: "peer1", HiveUsername: "peer1.hive"}))
	require.NoError(t, valDB.Close())

	app := cli.App{}
	set := nodeFlagSet(t, dataDir)
	set.Bool("force-clear-db", true, "force clear db")
	ctx := cli.NewContext(&app, set, nil)

	node, err := NewValidatorNode(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, node.db.Close())
	}()

	require.LogsContain(t, hook, "Removing database")
	_, err = node.db.Agent(context.Background(), "peer1")
	require.ErrorIs(t, err, kv.ErrNotFound)
}
