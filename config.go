package pylink

import (
	"regexp"

	hconfig "github.com/horgh/config"
	"github.com/pkg/errors"
)

// Config holds the fixed set of options this engine consumes. Validating
// permissions/ACLs is the caller's job; this struct and its loader,
// LoadConfig, only cover the enumerated keys below.
type Config struct {
	Hostname string
	SendPass string
	RecvPass string
	SID      SID
	Channels []string

	// BotPrefix is read but not enforced as a trigger gate on bot-command
	// dispatch. Preserved so callers that do want to enforce it have the
	// value available.
	BotPrefix string
}

var knownConfigKeys = map[string]struct{}{
	"hostname":   {},
	"sendpass":   {},
	"recvpass":   {},
	"sid":        {},
	"channels":   {},
	"bot-prefix": {},
}

// LoadConfig reads a flat key=value configuration file with
// github.com/horgh/config's ReadStringMap, narrowed to the six keys this
// package understands. Unknown keys are rejected at load time.
func LoadConfig(file string) (*Config, error) {
	raw, err := hconfig.ReadStringMap(file)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	for key := range raw {
		if _, ok := knownConfigKeys[key]; !ok {
			return nil, newUsageError("unknown configuration key: %s", key)
		}
	}

	required := []string{"hostname", "sendpass", "recvpass", "sid"}
	for _, key := range required {
		v, exists := raw[key]
		if !exists || len(v) == 0 {
			return nil, newUsageError("missing or blank required config key: %s", key)
		}
	}

	cfg := &Config{
		Hostname:  raw["hostname"],
		SendPass:  raw["sendpass"],
		RecvPass:  raw["recvpass"],
		BotPrefix: raw["bot-prefix"],
	}

	if !isValidSID(raw["sid"]) {
		return nil, newUsageError("sid is in invalid format: %s", raw["sid"])
	}
	cfg.SID = SID(raw["sid"])

	if chans, ok := raw["channels"]; ok && len(chans) > 0 {
		cfg.Channels = splitConfigList(chans)
	}

	return cfg, nil
}

var configListRE = regexp.MustCompile(`\s*,\s*`)

// splitConfigList splits a comma-separated config value, trimming
// whitespace around each element.
func splitConfigList(v string) []string {
	return configListRE.Split(v, -1)
}
