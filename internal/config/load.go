package config

import (
	"fmt"
	"os"
	"path/filepath"

	"testrig/internal/paths"
)

// LoadOptions selects the optional layers for Load.
type LoadOptions struct {
	Mixins []string
	Getenv func(string) string
}

// Load assembles the standard layer stack for a project: the project file,
// its imports, plugin config, the user file, and any mixins.
func Load(pp paths.ProjectPaths, opts LoadOptions) (*Resolved, error) {
	project, err := LoadLayer("project", pp.ProjectFile, false)
	if err != nil {
		return nil, err
	}
	layers := []Layer{project}

	imports, err := importLayers(pp.Root, project.Doc)
	if err != nil {
		return nil, err
	}
	layers = append(layers, imports...)

	user, err := LoadLayer("user", pp.UserFile, true)
	if err != nil {
		return nil, err
	}
	var mixins []Layer
	for _, m := range opts.Mixins {
		l, err := LoadLayer("mixin:"+filepath.Base(m), paths.Join(pp.Root, m), false)
		if err != nil {
			return nil, err
		}
		mixins = append(mixins, l)
	}

	// Plugin selection may come from any explicit layer.
	selection := Document{}
	for _, l := range append(append(append([]Layer(nil), layers...), user), mixins...) {
		selection = Merge(selection, l.Doc)
	}
	var plugins Plugins
	if sec, ok := selection["plugins"]; ok {
		if err := decode(sec, &plugins); err != nil {
			return nil, fmt.Errorf("decode plugins: %w", err)
		}
	}
	pluginLayers, err := PluginLayers(pp.Root, plugins)
	if err != nil {
		return nil, err
	}
	layers = append(layers, pluginLayers...)
	layers = append(layers, user)
	layers = append(layers, mixins...)

	return Resolve(Options{Root: pp.Root, Getenv: opts.Getenv}, layers...)
}

func importLayers(root string, doc Document) ([]Layer, error) {
	raw, ok := doc["import"]
	if !ok {
		return nil, nil
	}
	files, ok := toStrings(raw)
	if !ok {
		return nil, fmt.Errorf("import must be a list of files")
	}
	layers := make([]Layer, 0, len(files))
	for _, f := range files {
		l, err := LoadLayer("import:"+filepath.Base(f), paths.Join(root, f), false)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// PluginDir finds <load_path>/<name> for the first load path that has it.
func PluginDir(root string, loadPaths []string, name string) (string, bool) {
	for _, lp := range loadPaths {
		dir := filepath.Join(paths.Join(root, lp), name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}
	return "", false
}

// PluginLayers returns the config contributed by each enabled plugin found on
// disk: config/defaults.yml fills gaps, config/<name>.yml merges.
func PluginLayers(root string, p Plugins) ([]Layer, error) {
	var layers []Layer
	for _, name := range p.Enabled {
		dir, ok := PluginDir(root, p.LoadPaths, name)
		if !ok {
			continue
		}
		defaults, err := LoadLayer("plugin-defaults:"+name, filepath.Join(dir, "config", "defaults.yml"), true)
		if err != nil {
			return nil, err
		}
		if len(defaults.Doc) > 0 {
			defaults.FillOnly = true
			layers = append(layers, defaults)
		}
		cfg, err := LoadLayer("plugin:"+name, filepath.Join(dir, "config", name+".yml"), true)
		if err != nil {
			return nil, err
		}
		if len(cfg.Doc) > 0 {
			layers = append(layers, cfg)
		}
	}
	return layers, nil
}
