// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for mcphub.
package config

// Separator is the two-character sequence joining a server name and a raw
// tool name into a qualified tool name. Server names must not contain it.
const Separator = "__"

// Transport identifies how a remote backend is reached.
type Transport string

// Supported remote transports.
const (
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Paths holds filesystem locations for persistent state.
	Paths Paths `yaml:"paths"`

	// Servers lists the backend tool servers to federate.
	Servers []ServerConfig `yaml:"servers"`

	// Selector configures the LLM-assisted relevance filter.
	Selector SelectorConfig `yaml:"selector,omitempty"`

	// Sandbox configures the script execution container.
	Sandbox SandboxConfig `yaml:"sandbox,omitempty"`

	// Gateway configures the local HTTP surface.
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
}

// Paths holds filesystem locations for persistent state.
type Paths struct {
	// Root is the directory under which workspace/, workspace/skills/,
	// generated/, .oauth/, and data/ live.
	Root string `yaml:"root"`
}

// ServerConfig describes one backend tool server. Exactly one of Command
// (local subprocess over stdio) or URL (remote) must be set.
type ServerConfig struct {
	// Name is the backend identifier. Non-empty, must not contain "__",
	// unique across the server list.
	Name string `yaml:"name"`

	// Command is the executable for a local stdio backend.
	Command string `yaml:"command,omitempty"`

	// Args are the arguments passed to Command.
	Args []string `yaml:"args,omitempty"`

	// Env are extra KEY=VALUE pairs for the subprocess environment.
	Env []string `yaml:"env,omitempty"`

	// URL is the endpoint of a remote backend.
	URL string `yaml:"url,omitempty"`

	// Transport selects the remote framing: "sse" or "streamable-http".
	Transport Transport `yaml:"transport,omitempty"`
}

// Local reports whether the server is a local stdio subprocess.
func (s ServerConfig) Local() bool {
	return s.Command != ""
}

// SelectorConfig configures the search_tools relevance filter.
type SelectorConfig struct {
	// Model is the Anthropic model id used for selection.
	Model string `yaml:"model,omitempty"`

	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string `yaml:"api_key,omitempty"`
}

// SandboxConfig configures the long-running execution container.
type SandboxConfig struct {
	// Image is the tag of the sandbox image.
	Image string `yaml:"image,omitempty"`

	// ProxyPort is the in-container federation proxy port.
	ProxyPort int `yaml:"proxy_port,omitempty"`

	// OAuthPort is the loopback OAuth redirect port.
	OAuthPort int `yaml:"oauth_port,omitempty"`

	// Runtime is the container runtime binary. Defaults to "docker".
	Runtime string `yaml:"runtime,omitempty"`
}

// GatewayConfig configures the local HTTP gateway.
type GatewayConfig struct {
	// Listen is the host:port the gateway binds. Empty disables it.
	Listen string `yaml:"listen,omitempty"`
}

// Default values applied by Normalize.
const (
	DefaultImage     = "mcphub-sandbox:latest"
	DefaultProxyPort = 8799
	DefaultOAuthPort = 3000
	DefaultRuntime   = "docker"
	DefaultSelector  = "claude-3-5-haiku-latest"
)

// Normalize fills zero-valued fields with defaults. Called after Load.
func (c *Config) Normalize() {
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = DefaultImage
	}
	if c.Sandbox.ProxyPort == 0 {
		c.Sandbox.ProxyPort = DefaultProxyPort
	}
	if c.Sandbox.OAuthPort == 0 {
		c.Sandbox.OAuthPort = DefaultOAuthPort
	}
	if c.Sandbox.Runtime == "" {
		c.Sandbox.Runtime = DefaultRuntime
	}
	if c.Selector.Model == "" {
		c.Selector.Model = DefaultSelector
	}
}
