package params

import (
	"sync"

	"github.com/mohae/deepcopy"
)

var poaConfig = MainnetConfig()
var poaConfigLock sync.RWMutex

// PoAConfig retrieves the proof-of-access chain config.
func PoAConfig() *PoAChainConfig {
	poaConfigLock.RLock()
	defer poaConfigLock.RUnlock()
	return poaConfig
}

// OverridePoAConfig by replacing the config. The preferred pattern is to
// call PoAConfig(), change the specific parameters, and then call
// OverridePoAConfig(c). Any subsequent calls to params.PoAConfig() will
// return this new configuration.
func OverridePoAConfig(c *PoAChainConfig) {
	poaConfigLock.Lock()
	defer poaConfigLock.Unlock()
	poaConfig = c
}

// Copy returns a copy of the config object.
func (c *PoAChainConfig) Copy() *PoAChainConfig {
	poaConfigLock.RLock()
	defer poaConfigLock.RUnlock()
	config, ok := deepcopy.Copy(*c).(PoAChainConfig)
	if !ok {
		config = *poaConfig
	}
	return &config
}
