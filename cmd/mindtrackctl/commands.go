package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"MindTrack/pkg/app"
	"MindTrack/pkg/config"
	"MindTrack/pkg/correlation"
	"MindTrack/pkg/database"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/model"
)

// Context 命令共享的运行环境
type Context struct {
	Out        io.Writer
	loadConfig func() (*config.Config, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *Context) error {
	cfg, err := ctx.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver == app.DriverMemory {
		return fmt.Errorf("内存存储无需迁移")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Migrated %s database\n", cfg.Database.Driver)
	return nil
}

type CorrelateCmd struct {
	File    string `help:"JSON array of health events, or - for stdin." default:"-"`
	Variant string `help:"Rule set: analysis or insights." enum:"analysis,insights" default:"analysis"`
}

func (c *CorrelateCmd) Run(ctx *Context) error {
	variant, err := correlation.VariantByName(c.Variant)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var events []model.HealthEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return fmt.Errorf("解析事件文件失败: %w", err)
	}

	return writeJSON(ctx.Out, correlation.Analyze(events, variant))
}

type LastCmd struct {
	User string `required:"" help:"User ID."`
}

func (c *LastCmd) Run(ctx *Context) error {
	cfg, err := ctx.loadConfig()
	if err != nil {
		return err
	}

	bg := context.Background()
	a, err := app.New(bg, cfg, logger.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	last := a.Analysis.GetLastAnalysis(bg, c.User)
	if last == nil {
		fmt.Fprintf(ctx.Out, "No saved analysis for %s\n", c.User)
		return nil
	}
	return writeJSON(ctx.Out, last)
}

type RefreshCmd struct {
	Days int `help:"Users with events in the last N days count as active. Defaults to the scheduler setting."`
}

func (c *RefreshCmd) Run(ctx *Context) error {
	cfg, err := ctx.loadConfig()
	if err != nil {
		return err
	}
	days := c.Days
	if days <= 0 {
		days = cfg.Scheduler.ActiveWindowDays
	}

	bg := context.Background()
	a, err := app.New(bg, cfg, logger.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Insights.RefreshActive(bg, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Regenerated insights for %d users\n", n)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
