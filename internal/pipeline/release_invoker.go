package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"testrig/internal/cache"
	"testrig/internal/config"
	"testrig/internal/graph"
	"testrig/internal/paths"
	"testrig/internal/plugin"
	"testrig/internal/stream"
	"testrig/internal/tools"
)

// RunRelease compiles every release source, links the release artifact and
// copies it into the release artifacts directory. It returns the artifact path.
func (p *Pipeline) RunRelease(ctx context.Context) (string, error) {
	if err := paths.EnsureDirs(p.cfg.Build.ReleaseDirs()...); err != nil {
		return "", err
	}
	if err := p.prepareCache(cache.KindRelease); err != nil {
		return "", err
	}
	sentinel := p.cache.SentinelPath(cache.KindRelease)

	output := p.cfg.ReleaseBuild.Output
	if output == "" {
		output = p.cfg.Project.Name
	}
	artifact := p.layout.ReleaseArtifact(output)

	if err := p.hook(ctx, plugin.PreRelease, &plugin.Args{Context: cache.KindRelease, Output: artifact}); err != nil {
		return "", err
	}

	compiler, err := p.tool(config.ToolReleaseCompiler)
	if err != nil {
		return "", err
	}
	var objects []string
	for _, src := range p.cfg.Collection("all_source") {
		obj, err := p.releaseNode(compiler, src, p.layout.ReleaseObject(src), p.cfg.FlagsFor("release", "compile"), sentinel)
		if err != nil {
			return "", err
		}
		objects = append(objects, obj)
	}
	if p.cfg.ReleaseBuild.UseAssembly {
		assembler, err := p.tool(config.ToolReleaseAssembler)
		if err != nil {
			return "", err
		}
		for _, src := range p.cfg.Collection("all_assembly") {
			obj, err := p.releaseNode(assembler, src, p.layout.ReleaseAsmObject(src), p.cfg.FlagsFor("release", "assemble"), sentinel)
			if err != nil {
				return "", err
			}
			objects = append(objects, obj)
		}
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("release build has no source files")
	}
	if err := p.invoker.InvokeBatch(ctx, objects); err != nil {
		return "", err
	}

	linker, err := p.tool(config.ToolReleaseLinker)
	if err != nil {
		return "", err
	}
	flags := FlagsFor(p.cfg.FlagsFor("release", "link"), artifact)
	libs := p.cfg.Libraries.LinkArgs(p.cfg.Libraries.Release)
	mapFile := p.layout.ReleaseMap(output)
	p.graph.File(artifact, objects, func(ctx context.Context, n *graph.Node) error {
		cmd, err := p.commands.BuildCommandLine(linker, flags, objects, n.Target, mapFile, libs)
		if err != nil {
			return err
		}
		args := &plugin.Args{Context: cache.KindRelease, Output: n.Target, Command: &cmd}
		if err := p.hook(ctx, plugin.PreLinkExecute, args); err != nil {
			return err
		}
		p.stream.Printf(stream.Normal, "Linking %s...\n", filepath.Base(n.Target))
		res, err := p.exec.Exec(ctx, cmd, tools.Options{})
		if err != nil {
			return err
		}
		args.Result = &res
		return p.hook(ctx, plugin.PostLinkExecute, args)
	})
	if err := p.graph.Invoke(ctx, artifact); err != nil {
		return "", err
	}

	copied := filepath.Join(p.cfg.Build.ArtifactsRelease, filepath.Base(artifact))
	if err := copyFile(artifact, copied); err != nil {
		return "", fmt.Errorf("copy release artifact: %w", err)
	}

	if err := p.hook(ctx, plugin.PostRelease, &plugin.Args{Context: cache.KindRelease, Input: artifact, Output: copied}); err != nil {
		return "", err
	}
	p.stream.Successf("Release artifact: %s\n", copied)
	return copied, nil
}

func (p *Pipeline) releaseNode(tool tools.Descriptor, src, obj string, flagTable map[string][]string, sentinel string) (string, error) {
	dep := p.layout.ReleaseDependency(src)
	list := filepath.Join(filepath.Dir(obj), stem(src)+p.layout.Ext.List)
	p.graph.File(obj, []string{src, sentinel}, func(ctx context.Context, n *graph.Node) error {
		cmd, err := p.commands.BuildCommandLine(tool, FlagsFor(flagTable, src), src, n.Target, list, dep)
		if err != nil {
			return err
		}
		args := &plugin.Args{Context: cache.KindRelease, Input: src, Output: n.Target, Command: &cmd}
		if err := p.hook(ctx, plugin.PreCompileExecute, args); err != nil {
			return err
		}
		p.stream.Printf(stream.Normal, "Compiling %s...\n", filepath.Base(src))
		res, err := p.exec.Exec(ctx, cmd, tools.Options{})
		if err != nil {
			return err
		}
		args.Result = &res
		return p.hook(ctx, plugin.PostCompileExecute, args)
	})
	if p.cfg.Project.UseDeepDependencies {
		if err := p.graph.LoadDependencyFile(dep); err != nil {
			return "", err
		}
	}
	return obj, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
