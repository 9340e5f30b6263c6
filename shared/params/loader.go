package params

import (
	"io/ioutil"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadPoAConfigFile loads, unmarshals, and applies a proof-of-access chain
// config file on top of the preset it names.
func LoadPoAConfigFile(configFileName string) {
	yamlFile, err := ioutil.ReadFile(configFileName) // #nosec G304
	if err != nil {
		log.WithError(err).Fatal("Failed to read PoA config file.")
	}
	// Default to using mainnet.
	conf := MainnetConfig().Copy()
	// To track if config name is defined inside config file.
	hasConfigName := false
	lines := strings.Split(string(yamlFile), "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "CONFIG_NAME") {
			hasConfigName = true
		}
		if strings.HasPrefix(line, "PRESET_BASE: 'minimal'") ||
			strings.HasPrefix(line, `PRESET_BASE: "minimal"`) ||
			strings.HasPrefix(line, "PRESET_BASE: minimal") {
			conf = MinimalSpecConfig().Copy()
		}
	}
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		if _, ok := err.(*yaml.TypeError); !ok {
			log.WithError(err).Fatal("Failed to parse PoA config yaml file.")
		} else {
			log.WithError(err).Error("There were some issues parsing the config from a yaml file")
		}
	}
	if !hasConfigName {
		conf.ConfigName = "devnet"
	}
	log.Debugf("Config file values: %+v", conf)
	OverridePoAConfig(conf)
}
