package plugin

import "errors"

var (
	// ErrMissingEntryPoint is returned when a plugin directory has no entry module.
	ErrMissingEntryPoint = errors.New("plugin has no entry point (main.lua or main.yaml)")

	// ErrLoad is returned when an entry module cannot be loaded or its extend
	// hook fails.
	ErrLoad = errors.New("plugin failed to load")

	// ErrRuleConflict is returned when a manifest names a rule that is already
	// installed.
	ErrRuleConflict = errors.New("rule name already installed")

	// ErrInvalidName is returned for plugin names that are not a single path element.
	ErrInvalidName = errors.New("invalid plugin name")
)
