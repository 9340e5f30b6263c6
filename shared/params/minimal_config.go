package params

// UseMinimalConfig for validator services.
func UseMinimalConfig() {
	OverridePoAConfig(MinimalSpecConfig())
}

// MinimalSpecConfig retrieves the minimal config used in tests and dev
// networks. Rounds and cooldowns shrink from hours to seconds so a full
// challenge cycle can be observed quickly; every policy threshold stays
// identical to mainnet.
func MinimalSpecConfig() *PoAChainConfig {
	minimalConfig := mainnetPoAConfig.Copy()

	minimalConfig.ConfigName = "minimal"
	minimalConfig.PresetBase = "minimal"

	minimalConfig.SecondsPerRound = 2 * 60
	minimalConfig.AgentCooldownSeconds = 30
	minimalConfig.PairCooldownSeconds = 60

	return minimalConfig
}
