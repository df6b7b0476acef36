package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/hashicorp/hcl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	keelCmd = &cobra.Command{
		Use:               "keel",
		Short:             "A relational storage engine",
		Long:              "Keel is a small relational storage engine with transactions.",
		PersistentPreRunE: keelPreRun,
		PersistentPostRun: keelPostRun,
	}

	logFile   = "keel.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "keel.hcl"
	noConfig   = false

	cfgVars   = map[string]*pflag.Flag{}
	cfg       = map[string]interface{}{}
	usedFlags = map[string]struct{}{}
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := keelCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	cfgVars["log-file"] = fs.Lookup("log-file")

	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	cfgVars["log-level"] = fs.Lookup("log-level")

	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
}

func Execute() error {
	return keelCmd.Execute()
}

func keelPreRun(cmd *cobra.Command, args []string) error {
	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			usedFlags[flg.Name] = struct{}{}
		})

	if configFile != "" && !noConfig {
		err := loadConfig()
		if err != nil {
			return fmt.Errorf("keel: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("keel: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("keel: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("keel starting")
	return nil
}

func keelPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("keel done")

	if logWriter != nil {
		logWriter.Close()
	}
}

func loadConfig() error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}

	for name, val := range cfg {
		flg, ok := cfgVars[name]
		if !ok {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if flg == nil {
			continue
		}
		if _, ok := usedFlags[flg.Name]; ok {
			continue
		}
		err := flg.Value.Set(fmt.Sprintf("%v", val))
		if err != nil {
			return fmt.Errorf("%s: %s", name, err)
		}
	}

	return nil
}
