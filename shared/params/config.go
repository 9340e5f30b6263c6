// Package params defines important constants that are essential to the
// proof-of-access validator services.
package params

// PoAChainConfig contains constant configs for the validator to coordinate
// proof-of-access rounds against the Hive chain. Monetary fields are
// denominated in micro-HIVE (see MicrosPerHive).
type PoAChainConfig struct {
	// Identity.
	ConfigName string `yaml:"CONFIG_NAME"` // Handle, used in logs and status endpoints.
	PresetBase string `yaml:"PRESET_BASE"` // Either "mainnet" or "minimal".

	// Challenge round schedule.
	SecondsPerRound         uint64 `yaml:"SECONDS_PER_ROUND"`          // Interval between challenge rounds.
	ChallengeBatchSize      uint64 `yaml:"CHALLENGE_BATCH_SIZE"`       // Upper bound of challenges issued per round.
	ChallengeTimeout        uint64 `yaml:"CHALLENGE_TIMEOUT"`          // Seconds before an unanswered challenge times out.
	AntiCheatThreshold      uint64 `yaml:"ANTI_CHEAT_THRESHOLD"`       // Seconds of server-measured latency treated as too slow.
	AgentCooldownSeconds    uint64 `yaml:"AGENT_COOLDOWN_SECONDS"`     // Base delay before an agent is eligible again.
	PairCooldownSeconds     uint64 `yaml:"PAIR_COOLDOWN_SECONDS"`      // Base delay before an (agent, CID) pair repeats.
	PairRetryLimit          uint64 `yaml:"PAIR_RETRY_LIMIT"`           // Resample attempts when a pair is cooled down.
	AgentCooldownMaxEntries uint64 `yaml:"AGENT_COOLDOWN_MAX_ENTRIES"` // Agent cooldown table size that triggers a trim.
	PairCooldownMaxEntries  uint64 `yaml:"PAIR_COOLDOWN_MAX_ENTRIES"`  // Pair cooldown table size that triggers a trim.

	// Trust-based scheduling multipliers.
	LowTrustReputation       int64  `yaml:"LOW_TRUST_REPUTATION"`        // Below this, agents are checked more often.
	HighTrustReputation      int64  `yaml:"HIGH_TRUST_REPUTATION"`       // At or above this, agents are checked less often.
	LowTrustCooldownQuotient uint64 `yaml:"LOW_TRUST_COOLDOWN_QUOTIENT"` // Cooldown divisor for low-trust agents.
	HighTrustCooldownFactor  uint64 `yaml:"HIGH_TRUST_COOLDOWN_FACTOR"`  // Cooldown multiplier for high-trust agents.

	// Selection weights.
	SelectionWeightBase   uint64 `yaml:"SELECTION_WEIGHT_BASE"`   // Agent weight is base minus reputation.
	SelectionStreakLimit  uint64 `yaml:"SELECTION_STREAK_LIMIT"`  // Streak above which agent weight halves.
	ReplicationWeightBase uint64 `yaml:"REPLICATION_WEIGHT_BASE"` // Blob weight grows as replication falls below this.
	SizeWeightQuotient    uint64 `yaml:"SIZE_WEIGHT_QUOTIENT"`    // Divisor applied to log10(size) in blob weight.
	AllowUnfundedFallback bool   `yaml:"ALLOW_UNFUNDED_FALLBACK"` // Challenge unfunded blobs when no contract pool exists.

	// Reputation policy.
	InitialReputation            int64  `yaml:"INITIAL_REPUTATION"`
	MaxReputation                int64  `yaml:"MAX_REPUTATION"`
	BanReputationThreshold       int64  `yaml:"BAN_REPUTATION_THRESHOLD"`       // Below this an agent is banned.
	ProbationReputationThreshold int64  `yaml:"PROBATION_REPUTATION_THRESHOLD"` // Below this an agent is on probation.
	ReputationSuccessGain        int64  `yaml:"REPUTATION_SUCCESS_GAIN"`
	FailPenaltyBase              int64  `yaml:"FAIL_PENALTY_BASE"`
	FailPenaltyCap               int64  `yaml:"FAIL_PENALTY_CAP"`
	FailPenaltyGrowthNumerator   int64  `yaml:"FAIL_PENALTY_GROWTH_NUMERATOR"`
	FailPenaltyGrowthDenominator int64  `yaml:"FAIL_PENALTY_GROWTH_DENOMINATOR"`
	ConsecutiveFailBanCount      uint64 `yaml:"CONSECUTIVE_FAIL_BAN_COUNT"` // Fails in a row that force an instant ban.
	BanCooloffSeconds            uint64 `yaml:"BAN_COOLOFF_SECONDS"`        // Banned agents are re-challengeable after this.

	// Rewards and financial safety. Amounts are micro-HIVE.
	FallbackReward              int64  `yaml:"FALLBACK_REWARD"`        // Reward per proof when no contract funds the blob.
	BatchPayoutThreshold        uint64 `yaml:"BATCH_PAYOUT_THRESHOLD"` // Verified proofs accumulated before a payout.
	MaxSinglePayout             int64  `yaml:"MAX_SINGLE_PAYOUT"`
	MaxDailySpend               int64  `yaml:"MAX_DAILY_SPEND"`
	MinValidatorReserve         int64  `yaml:"MIN_VALIDATOR_RESERVE"`
	StreakTier1Count            uint64 `yaml:"STREAK_TIER1_COUNT"`
	StreakTier1Multiplier       uint64 `yaml:"STREAK_TIER1_MULTIPLIER"`
	StreakTier2Count            uint64 `yaml:"STREAK_TIER2_COUNT"`
	StreakTier2Multiplier       uint64 `yaml:"STREAK_TIER2_MULTIPLIER"`
	StreakTier3Count            uint64 `yaml:"STREAK_TIER3_COUNT"`
	StreakTier3Multiplier       uint64 `yaml:"STREAK_TIER3_MULTIPLIER"`
	StreakMultiplierDenominator uint64 // Fixed scale for the streak multipliers above.

	// Agent channel.
	MaxAgentSessions     uint64 `yaml:"MAX_AGENT_SESSIONS"`
	MaxPendingChallenges uint64 `yaml:"MAX_PENDING_CHALLENGES"`
	RegisterTimeout      uint64 `yaml:"REGISTER_TIMEOUT"`   // Seconds an unregistered socket may live.
	HeartbeatInterval    uint64 `yaml:"HEARTBEAT_INTERVAL"` // Seconds between pings; silence past this terminates.
	PinsPerPart          uint64 `yaml:"PINS_PER_PART"`      // CIDs per SendCIDS chunk.

	// Ledger interaction.
	DigestRefreshSeconds    uint64 `yaml:"DIGEST_REFRESH_SECONDS"`    // Head block digest cache refresh cadence.
	LedgerRPCTimeout        uint64 `yaml:"LEDGER_RPC_TIMEOUT"`        // Seconds per ledger HTTP call.
	ConsensusValidatorCount uint64 `yaml:"CONSENSUS_VALIDATOR_COUNT"` // Size of the ranked consensus validator set.

	// Reference index.
	RefIndexCacheSize  uint64 `yaml:"REF_INDEX_CACHE_SIZE"`
	RefIndexTTLSeconds uint64 `yaml:"REF_INDEX_TTL_SECONDS"`

	// Node lifecycle.
	ShutdownGraceSeconds uint64 `yaml:"SHUTDOWN_GRACE_SECONDS"` // Hard cap on graceful shutdown.

	// Denominations.
	MicrosPerHive uint64 // 1 HIVE expressed in micro-HIVE units.
}
