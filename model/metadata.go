package model

// Metadata 每个 batch 的第一行，agent 生命周期内只构造一次
type Metadata struct {
	Service Service `json:"service"`
	System  System  `json:"system"`
	Process Process `json:"process"`
	Labels  Labels  `json:"labels,omitempty"`
}

type Service struct {
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Environment string     `json:"environment,omitempty"`
	Node        *Node      `json:"node,omitempty"`
	Agent       Agent      `json:"agent"`
	Language    Language   `json:"language"`
	Runtime     Runtime    `json:"runtime"`
	Framework   *Framework `json:"framework,omitempty"`
}

type Node struct {
	ConfiguredName string `json:"configured_name"`
}

type Agent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Language struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type Runtime struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Framework struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type System struct {
	Hostname     string `json:"hostname,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

type Process struct {
	Pid   int      `json:"pid"`
	Ppid  int      `json:"ppid,omitempty"`
	Title string   `json:"title,omitempty"`
	Argv  []string `json:"argv,omitempty"`
}
