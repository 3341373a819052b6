package client

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the command line.
const EnvPrefix = "HAMMER"

// AddApiConnectionCommandlineArgs registers the flags of the cluster management API on cmd.
func AddApiConnectionCommandlineArgs(cmd *cobra.Command, defaults ApiConnectionDetails) {
	cmd.Flags().String("api-base-url", defaults.ApiBaseUrl, "base URL of the cluster management API")
	cmd.Flags().String("api-key", defaults.ApiKey, "API key of the cluster management API")
	cmd.Flags().Int("api-timeout", int(defaults.Timeout.Seconds()), "timeout of each cluster management API request, in seconds")
}

// NewCommandlineViper returns the viper instance of one verb. Flags take precedence, then the environment
// variables HAMMER_<VERB>_<FLAG>, then the config file, then the flag defaults.
func NewCommandlineViper(verb string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix + "_" + strings.ToUpper(verb))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindSharedEnv lets the flags in names also be read from HAMMER_<FLAG>, for options shared by every verb.
// The verb's own variable wins if both are set.
func BindSharedEnv(v *viper.Viper, verb string, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		if flags.Lookup(name) == nil {
			continue
		}
		suffix := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		verbEnv := fmt.Sprintf("%s_%s_%s", EnvPrefix, strings.ToUpper(verb), suffix)
		if err := v.BindEnv(name, verbEnv, EnvPrefix+"_"+suffix); err != nil {
			return fmt.Errorf("[BindSharedEnv] error binding environment for %s: %s", name, err)
		}
	}
	return nil
}

// LoadCommandlineArgsFromConfigFile merges cfgFile into v. Without cfgFile, $HOME/.hammer.yaml is read if
// it exists.
func LoadCommandlineArgsFromConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}

		v.AddConfigPath(home)
		v.SetConfigName(".hammer")
		v.SetConfigType("yaml")
	}

	// If a config file is found, read it in.
	err := v.MergeInConfig()
	if err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// This only occurs when looking for the default .hammer file and it is not present
			// This is not an error as users don't have to specify it, so do nothing
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", v.ConfigFileUsed(), err)
		}
	}
	return nil
}
