package agent

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/imattdu/orbit-apm/config"
	"github.com/imattdu/orbit-apm/model"
)

// BuildMetadata 根据配置和当前进程构造 metadata，agent 生命周期内只调用一次
func BuildMetadata(cfg config.Config, framework *model.Framework) model.Metadata {
	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	md := model.Metadata{
		Service: model.Service{
			Name:        cfg.ServiceName,
			Version:     cfg.ServiceVersion,
			Environment: cfg.Environment,
			Agent:       model.Agent{Name: Name, Version: Version},
			Language:    model.Language{Name: "go", Version: runtime.Version()},
			Runtime:     model.Runtime{Name: runtime.Compiler, Version: runtime.Version()},
			Framework:   framework,
		},
		System: model.System{
			Hostname:     hostname,
			Architecture: runtime.GOARCH,
			Platform:     runtime.GOOS,
		},
		Process: model.Process{
			Pid:  os.Getpid(),
			Ppid: os.Getppid(),
			Argv: append([]string(nil), os.Args...),
		},
	}
	if cfg.ServiceNodeName != "" {
		md.Service.Node = &model.Node{ConfiguredName: cfg.ServiceNodeName}
	}
	if len(os.Args) > 0 {
		md.Process.Title = filepath.Base(os.Args[0])
	}
	if len(cfg.GlobalLabels) > 0 {
		md.Labels = model.Labels(cfg.GlobalLabels).Clone()
	}
	return md
}
