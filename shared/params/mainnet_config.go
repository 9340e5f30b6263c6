package params

// UseMainnetConfig for validator services.
func UseMainnetConfig() {
	OverridePoAConfig(MainnetConfig())
}

// MainnetConfig returns the configuration to be used in the main network.
func MainnetConfig() *PoAChainConfig {
	return mainnetPoAConfig
}

var mainnetPoAConfig = &PoAChainConfig{
	// Identity.
	ConfigName: "mainnet",
	PresetBase: "mainnet",

	// Challenge round schedule.
	SecondsPerRound:         4 * 60 * 60,
	ChallengeBatchSize:      5,
	ChallengeTimeout:        30,
	AntiCheatThreshold:      25,
	AgentCooldownSeconds:    2 * 60 * 60,
	PairCooldownSeconds:     12 * 60 * 60,
	PairRetryLimit:          5,
	AgentCooldownMaxEntries: 500,
	PairCooldownMaxEntries:  1000,

	// Trust-based scheduling multipliers.
	LowTrustReputation:       50,
	HighTrustReputation:      75,
	LowTrustCooldownQuotient: 2,
	HighTrustCooldownFactor:  2,

	// Selection weights.
	SelectionWeightBase:   101,
	SelectionStreakLimit:  50,
	ReplicationWeightBase: 10,
	SizeWeightQuotient:    10,
	AllowUnfundedFallback: true,

	// Reputation policy.
	InitialReputation:            60,
	MaxReputation:                100,
	BanReputationThreshold:       10,
	ProbationReputationThreshold: 30,
	ReputationSuccessGain:        1,
	FailPenaltyBase:              5,
	FailPenaltyCap:               20,
	FailPenaltyGrowthNumerator:   3,
	FailPenaltyGrowthDenominator: 2,
	ConsecutiveFailBanCount:      3,
	BanCooloffSeconds:            24 * 60 * 60,

	// Rewards and financial safety. Amounts are micro-HIVE.
	FallbackReward:              5000,     // 0.005 HIVE
	BatchPayoutThreshold:        5,
	MaxSinglePayout:             1000000,  // 1.0 HIVE
	MaxDailySpend:               50000000, // 50.0 HIVE
	MinValidatorReserve:         1000000,  // 1.0 HIVE
	StreakTier1Count:            10,
	StreakTier1Multiplier:       1100,
	StreakTier2Count:            50,
	StreakTier2Multiplier:       1250,
	StreakTier3Count:            100,
	StreakTier3Multiplier:       1500,
	StreakMultiplierDenominator: 1000,

	// Agent channel.
	MaxAgentSessions:     200,
	MaxPendingChallenges: 5000,
	RegisterTimeout:      10,
	HeartbeatInterval:    30,
	PinsPerPart:          100,

	// Ledger interaction.
	DigestRefreshSeconds:    3,
	LedgerRPCTimeout:        10,
	ConsensusValidatorCount: 20,

	// Reference index.
	RefIndexCacheSize:  1000,
	RefIndexTTLSeconds: 60 * 60,

	// Node lifecycle.
	ShutdownGraceSeconds: 10,

	// Denominations.
	MicrosPerHive: 1000000,
}
