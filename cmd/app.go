package cmd

import (
	"os"

	"github.com/wierd-stuff-inc/scribes/extensions"
	"github.com/wierd-stuff-inc/scribes/internal/book"
	"github.com/wierd-stuff-inc/scribes/internal/config"
	"github.com/wierd-stuff-inc/scribes/internal/logging"
	"github.com/wierd-stuff-inc/scribes/internal/plugin"
	"github.com/wierd-stuff-inc/scribes/internal/remote"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// app holds the components every command is assembled from.
type app struct {
	cfg      *config.Config
	logs     *logging.Provider
	log      logging.Logger
	rules    *extensions.RuleSet
	registry *plugin.Registry
	fetcher  *remote.Fetcher
	renderer *book.Renderer
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, os.Getenv)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logs, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		logs:  logs,
		log:   logs.Get("scribes"),
		rules: extensions.NewRuleSet(),
	}
	a.registry = plugin.NewRegistry(cfg.PluginsDir, cfg.OutputDir, a.rules,
		plugin.WithEntryPoints(plugin.DefaultEntryPoints(cfg.Plugins.Timeout)...),
		plugin.WithLogger(logs.Get("plugin")),
	)
	a.fetcher = remote.NewFetcher(cfg.CacheDir,
		remote.WithBaseURL(cfg.Remote.BaseURL),
		remote.WithBranch(cfg.Remote.Branch),
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(logs.Get("remote")),
	)
	a.renderer = book.NewRenderer(book.Options{
		BookDir:        cfg.BookDir,
		OutputDir:      cfg.OutputDir,
		TemplatesDir:   cfg.TemplatesDir,
		Registry:       a.registry,
		Fetcher:        a.fetcher,
		HighlightStyle: cfg.Highlight.Style,
		LineNumbers:    cfg.Highlight.LineNumbers,
		Log:            logs.Get("render"),
	})
	return a, nil
}
