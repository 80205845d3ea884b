package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
)

// EnvironmentVariablePrefix prefixes the env var that can set each flag.
const EnvironmentVariablePrefix = "JSONFAS_"

// setFlagsFromEnvVariables sets every flag that has a matching env var, so
// --service-url can also be given as JSONFAS_SERVICE_URL.
func setFlagsFromEnvVariables(fs *pflag.FlagSet) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		val, present := os.LookupEnv(flagToEnvVarName(f))
		if !present {
			return
		}
		if err := fs.Set(f.Name, val); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", flagToEnvVarName(f), err)
		}
	})
	return firstErr
}

func flagToEnvVarName(f *pflag.Flag) string {
	return EnvironmentVariablePrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
}

func catchCtrlC(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-signals
		signal.Stop(signals)
		cancel()
	}()
}
