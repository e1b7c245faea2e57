// Package logging hands out named loggers backed by go-logger.
package logging

import (
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the subset of go-logger the rest of scribes uses. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Provider struct {
	root *glog.BaseLogger
}

func New(cfg Config) (*Provider, error) {
	options := []glog.Option{}
	level, err := normalizeLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if level != "" {
		options = append(options, glog.WithLevel(level))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console":
		options = append(options, glog.WithLoggerTypeConsole())
	case "json":
		options = append(options, glog.WithLoggerTypeJSON())
	case "pretty":
		options = append(options, glog.WithLoggerTypePretty())
	default:
		return nil, fmt.Errorf("logging: unsupported format %q", cfg.Format)
	}
	return &Provider{root: glog.NewLogger(options...)}, nil
}

// Get returns the logger for one part of the program.
func (p *Provider) Get(name string) Logger {
	if p == nil || p.root == nil {
		return Nop()
	}
	if inner := p.root.GetLogger(name); inner != nil {
		return inner
	}
	return Nop()
}

func normalizeLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return "", nil
	case "debug":
		return glog.Debug, nil
	case "info":
		return glog.Info, nil
	case "warn", "warning":
		return glog.Warn, nil
	case "error":
		return glog.Error, nil
	}
	return "", fmt.Errorf("logging: unknown level %q", level)
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger {
	return nop{}
}
