// Package flags contains all configuration runtime flags for the
// proof-of-access validator.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// ValidatorAccountFlag is the Hive account this validator operates as.
	// Challenges, payouts, and reputation broadcasts are all issued under
	// this account.
	ValidatorAccountFlag = &cli.StringFlag{
		Name:     "validator-account",
		Usage:    "Hive account name this validator issues challenges and payouts as",
		Required: true,
	}
	// HiveEndpointFlag defines the Hive node RPC endpoint. Leaving it empty
	// runs the validator with ledger integration disabled.
	HiveEndpointFlag = &cli.StringFlag{
		Name:  "hive-endpoint",
		Usage: "Hive node RPC endpoint. Empty disables ledger integration",
	}
	// WalletEndpointFlag defines the wallet daemon RPC endpoint holding the
	// validator's keys. Required for broadcasting transfers.
	WalletEndpointFlag = &cli.StringFlag{
		Name:  "wallet-endpoint",
		Usage: "Wallet daemon RPC endpoint used to sign and broadcast transfers",
	}
	// IPFSAPIFlag defines the IPFS HTTP API used to fetch blob bytes and
	// sub-block reference lists.
	IPFSAPIFlag = &cli.StringFlag{
		Name:  "ipfs-api",
		Usage: "IPFS HTTP API endpoint for content fetches",
		Value: "http://127.0.0.1:5001",
	}
	// ChannelHostFlag defines the host the agent websocket listener binds.
	ChannelHostFlag = &cli.StringFlag{
		Name:  "channel-host",
		Usage: "Host on which the agent channel listener should bind",
		Value: "0.0.0.0",
	}
	// ChannelPortFlag defines the port the agent websocket listener binds.
	ChannelPortFlag = &cli.IntFlag{
		Name:  "channel-port",
		Usage: "Port on which the agent channel listener should bind",
		Value: 4000,
	}
	// RPCHost defines the host on which the read API should listen.
	RPCHost = &cli.StringFlag{
		Name:  "rpc-host",
		Usage: "Host on which the read API should listen",
		Value: "127.0.0.1",
	}
	// RPCPort defines the port on which the read API should listen.
	RPCPort = &cli.IntFlag{
		Name:  "rpc-port",
		Usage: "Port on which the read API should listen",
		Value: 7000,
	}
	// RPCAllowedOriginsFlag defines the comma-separated origins allowed to
	// read the API from a browser.
	RPCAllowedOriginsFlag = &cli.StringFlag{
		Name:  "rpc-allowed-origins",
		Usage: "Comma separated list of origins allowed to access the read API from a browser",
		Value: "*",
	}
	// MonitoringPortFlag defines the http port used to serve prometheus
	// metrics.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listen and respond to metrics requests for prometheus",
		Value: 8081,
	}
	// BroadcastResultsFlag publishes successful challenge results to the
	// ledger as informational custom records.
	BroadcastResultsFlag = &cli.BoolFlag{
		Name:  "broadcast-results",
		Usage: "Broadcast successful challenge results to the ledger as custom records",
	}
)
