package plugin

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wierd-stuff-inc/scribes/extensions"
	"github.com/wierd-stuff-inc/scribes/internal/logging"
	"github.com/wierd-stuff-inc/scribes/util"
)

// Resolved is a plugin found on disk.
type Resolved struct {
	Name  string
	Dir   string
	Entry string

	loader Loader
}

// assetKind maps a plugin subdirectory to the URL prefix its files are served under.
type assetKind struct {
	dir    string
	prefix string
	add    func(*AssetLinks, ...string)
}

var assetKinds = []assetKind{
	{dir: "scripts", prefix: "js", add: (*AssetLinks).AddScripts},
	{dir: "styles", prefix: "css", add: (*AssetLinks).AddStyles},
}

// Registry finds plugins, runs their extend hooks against the shared rule
// set and publishes their assets into the output tree.
type Registry struct {
	localRoot   string
	outputDir   string
	rules       *extensions.RuleSet
	entryPoints []EntryPoint
	log         logging.Logger

	mu        sync.Mutex
	installed map[string]struct{}
}

type RegistryOption func(*Registry)

// WithEntryPoints replaces the entry modules a plugin may provide, in lookup order.
func WithEntryPoints(eps ...EntryPoint) RegistryOption {
	return func(r *Registry) {
		r.entryPoints = eps
	}
}

func WithLogger(log logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

// DefaultEntryPoints are main.lua then main.yaml and main.yml.
func DefaultEntryPoints(luaTimeout time.Duration) []EntryPoint {
	return []EntryPoint{
		{File: "main.lua", Loader: NewLuaLoader(luaTimeout)},
		{File: "main.yaml", Loader: ManifestLoader},
		{File: "main.yml", Loader: ManifestLoader},
	}
}

// NewRegistry creates a registry for plugins under localRoot whose assets are
// copied below outputDir/js and outputDir/css.
func NewRegistry(localRoot, outputDir string, rules *extensions.RuleSet, opts ...RegistryOption) *Registry {
	r := &Registry{
		localRoot:   localRoot,
		outputDir:   outputDir,
		rules:       rules,
		entryPoints: DefaultEntryPoints(DefaultLuaTimeout),
		log:         logging.Nop(),
		installed:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) LocalRoot() string {
	return r.localRoot
}

func (r *Registry) Rules() *extensions.RuleSet {
	return r.rules
}

// Resolve finds the entry module of baseDir/name.
func (r *Registry) Resolve(baseDir, name string) (Resolved, error) {
	if err := checkName(name); err != nil {
		return Resolved{}, err
	}
	dir := filepath.Join(baseDir, name)
	for _, ep := range r.entryPoints {
		entry := filepath.Join(dir, ep.File)
		info, err := os.Stat(entry)
		if err == nil && info.Mode().IsRegular() {
			return Resolved{Name: name, Dir: dir, Entry: entry, loader: ep.Loader}, nil
		}
	}
	return Resolved{}, fmt.Errorf("%w: %s", ErrMissingEntryPoint, dir)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// RegisterLocal registers a plugin from the local plugins directory.
func (r *Registry) RegisterLocal(ctx context.Context, links *AssetLinks, name string) error {
	return r.Register(ctx, links, r.localRoot, name)
}

// Register resolves baseDir/name, runs its extend hook unless this process
// already did, and links its scripts and styles into links.
func (r *Registry) Register(ctx context.Context, links *AssetLinks, baseDir, name string) error {
	r.log.Debug("registering plugin", "plugin", name, "dir", baseDir)
	resolved, err := r.Resolve(baseDir, name)
	if err != nil {
		return err
	}
	if err := r.install(ctx, resolved); err != nil {
		return err
	}
	for _, kind := range assetKinds {
		if err := r.linkAssets(resolved, kind, links); err != nil {
			return err
		}
	}
	r.log.Info("plugin registered", "plugin", name)
	return nil
}

func (r *Registry) install(ctx context.Context, p Resolved) error {
	id, err := filepath.Abs(p.Dir)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.installed[id]; ok {
		return nil
	}
	ext, err := p.loader.Load(p.Entry)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, p.Name, err)
	}
	before := r.rules.Len()
	engine := conflictLogger{Engine: r.rules, plugin: p.Name, log: r.log}
	if err := ext.Extend(ctx, engine); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoad, p.Name, err)
	}
	r.installed[id] = struct{}{}
	r.log.Debug("plugin installed", "plugin", p.Name, "rules", r.rules.Len()-before)
	return nil
}

// conflictLogger warns when a hook installs a rule under a name another
// plugin already took. The first rule keeps the name.
type conflictLogger struct {
	Engine
	plugin string
	log    logging.Logger
}

func (e conflictLogger) Install(p *extensions.AttrTagPattern) bool {
	if e.Engine.Install(p) {
		return true
	}
	e.log.Warn("rule name already installed, pattern ignored", "plugin", e.plugin, "rule", p.Name())
	return false
}

func (r *Registry) linkAssets(p Resolved, kind assetKind, links *AssetLinks) error {
	src := filepath.Join(p.Dir, kind.dir)
	if !util.IsDir(src) {
		return nil
	}
	dst := filepath.Join(r.outputDir, kind.prefix, p.Name)
	if err := util.CopyDir(src, dst, true); err != nil {
		return fmt.Errorf("copying %s of %s: %w", kind.dir, p.Name, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		urls = append(urls, "/"+path.Join(kind.prefix, p.Name, entry.Name()))
	}
	kind.add(links, urls...)
	return nil
}
