package cmd

import (
	"github.com/clambin/go-common/charmer"
	"github.com/clambin/home-controller/internal/cmd/learn"
	"github.com/clambin/home-controller/internal/cmd/run"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log/slog"
	"os"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "home-controller",
		Short: "Runs the home through its daily modes",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&run.Cmd, &learn.Cmd)
}

var args = charmer.Arguments{
	"debug":             charmer.Argument{Default: false, Help: "Log debug messages"},
	"hass.url":          charmer.Argument{Default: "http://homeassistant.local:8123", Help: "Home Assistant URL"},
	"hass.token":        charmer.Argument{Default: "", Help: "Home Assistant long-lived access token"},
	"mqtt.broker":       charmer.Argument{Default: "", Help: "MQTT broker caching the early-morning contract (blank: disabled)"},
	"mqtt.clientID":     charmer.Argument{Default: "home-controller", Help: "MQTT client ID"},
	"learning.database": charmer.Argument{Default: "", Help: "Learning sample database (blank: disabled)"},
	"metrics.addr":      charmer.Argument{Default: ":9090", Help: "Address of Prometheus metrics endpoint"},
	"health.addr":       charmer.Argument{Default: ":8080", Help: "Address of /health endpoint"},
	"slack.token":       charmer.Argument{Default: "", Help: "Slack token"},
	"timezone":          charmer.Argument{Default: "Local", Help: "Timezone of the home"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/home-controller/")
		viper.AddConfigPath("$HOME/.home-controller")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("HOME_CONTROLLER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
