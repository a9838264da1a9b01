package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"MindTrack/pkg/app"
	"MindTrack/pkg/config"
	"MindTrack/pkg/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path. Defaults to CONFIG_PATH or configs/<APP_ENV>/app.yaml." type:"path"`

	Migrate   MigrateCmd   `cmd:"" help:"Create or update database tables."`
	Correlate CorrelateCmd `cmd:"" help:"Run the correlation engine over a JSON file of events."`
	Last      LastCmd      `cmd:"" help:"Show the last saved AI analysis for a user."`
	Refresh   RefreshCmd   `cmd:"" help:"Regenerate insights for recently active users."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("mindtrackctl"),
		kong.Description("MindTrack maintenance tool"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cmdCtx := &Context{
		Out:        os.Stdout,
		loadConfig: loadConfig(CLI.Config),
	}

	if err := ctx.Run(cmdCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 只在需要配置的命令中读取，并初始化日志
func loadConfig(path string) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if path != "" {
			cfg, err = config.LoadConfig(path)
		} else {
			cfg, err = app.LoadConfig()
		}
		if err != nil {
			return nil, err
		}
		if err := logger.Init(cfg.Log, "mindtrackctl"); err != nil {
			return nil, err
		}
		return cfg, nil
	}
}
