package plugin

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"testrig/internal/stream"
	"testrig/internal/tools"
)

type manifest struct {
	Hooks map[string]tools.Descriptor `yaml:"hooks"`
}

// CommandPlugin runs a tool for each hook named in its plugin.yml. The tool
// gets the primary path as ${1} and the secondary path as ${2}.
type CommandPlugin struct {
	name  string
	pc    *Context
	hooks map[Hook]tools.Descriptor
}

// LoadCommandPlugin reads a plugin.yml manifest.
func LoadCommandPlugin(pc *Context, name, path string) (*CommandPlugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin %q manifest: %w", name, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse plugin %q manifest: %w", name, err)
	}

	p := &CommandPlugin{name: name, pc: pc, hooks: map[Hook]tools.Descriptor{}}
	for key, desc := range m.Hooks {
		hook, ok := ParseHook(key)
		if !ok {
			return nil, fmt.Errorf("plugin %q: unknown hook %q", name, key)
		}
		if desc.Executable == "" {
			return nil, fmt.Errorf("plugin %q: hook %s has no executable", name, key)
		}
		if desc.Name == "" {
			desc.Name = name + ":" + key
		}
		p.hooks[hook] = desc
	}
	return p, nil
}

func (p *CommandPlugin) Name() string { return p.name }

// HookFuncs implements HookProvider.
func (p *CommandPlugin) HookFuncs() map[Hook]HookFunc {
	out := make(map[Hook]HookFunc, len(p.hooks))
	for hook, desc := range p.hooks {
		desc := desc
		out[hook] = func(ctx context.Context, args *Args) error {
			return p.run(ctx, desc, args)
		}
	}
	return out
}

func (p *CommandPlugin) run(ctx context.Context, desc tools.Descriptor, args *Args) error {
	primary, secondary := args.Input, args.Output
	if primary == "" {
		primary = args.Test
	}
	cmd, err := p.pc.Commands.BuildCommandLine(desc, nil, primary, secondary)
	if err != nil {
		return err
	}
	res, err := p.pc.Executor.Exec(ctx, cmd, tools.Options{})
	if err != nil {
		return err
	}
	if res.Output != "" {
		p.pc.Stream.Printf(stream.Normal, "%s", res.Output)
	}
	return nil
}
