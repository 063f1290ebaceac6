package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

//go:embed Dockerfile
var dockerfile string

// containerLabel marks containers owned by mcphub so orphan cleanup never
// touches anything else.
const containerLabel = "dev.mcphub.sandbox=1"

// runtimeCmd runs one container-runtime command and returns its trimmed
// stdout. Stderr is folded into the error.
func (m *Manager) runtimeCmd(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.cfg.Runtime, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", m.cfg.Runtime, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runtimePresent reports whether the configured runtime is on PATH.
func (m *Manager) runtimePresent() bool {
	_, err := exec.LookPath(m.cfg.Runtime)
	return err == nil
}

// CleanupOrphans stops and removes labeled containers surviving from prior
// runs. Idempotent: running it twice has the same observable effect as
// running it once.
func (m *Manager) CleanupOrphans(ctx context.Context) error {
	out, err := m.runtimeCmd(ctx, "ps", "-aq", "--filter", "label="+containerLabel)
	if err != nil {
		return err
	}
	for _, id := range strings.Fields(out) {
		m.logger.Info("removing orphaned sandbox container", "container", id)
		_, _ = m.runtimeCmd(ctx, "stop", "--time", "2", id)
		_, _ = m.runtimeCmd(ctx, "rm", "-f", id)
	}
	return nil
}

// ensureImage builds the bundled recipe when the tagged image is absent.
func (m *Manager) ensureImage(ctx context.Context) error {
	if _, err := m.runtimeCmd(ctx, "image", "inspect", m.cfg.Image); err == nil {
		return nil
	}

	m.logger.Info("building sandbox image", "image", m.cfg.Image)
	cmd := exec.CommandContext(ctx, m.cfg.Runtime, "build", "-t", m.cfg.Image, "-")
	cmd.Stdin = strings.NewReader(dockerfile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("building %s: %w: %s", m.cfg.Image, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// startContainer launches the long-running container with the workspace
// root, the mcphub binary, and the config bound in, and the proxy and
// OAuth ports published on loopback. The idle primary process keeps the
// container alive; the in-container proxy runs as a background exec.
func (m *Manager) startContainer(ctx context.Context) (string, error) {
	args := []string{
		"run", "-d",
		"--label", containerLabel,
		"-v", m.ws.Root + ":" + containerRoot,
		"-v", m.exePath + ":/usr/local/bin/mcphub:ro",
		"-v", m.configPath + ":/etc/mcphub/mcphub.yaml:ro",
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", m.cfg.ProxyPort, m.cfg.ProxyPort),
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", m.cfg.OAuthPort, m.cfg.OAuthPort),
		m.cfg.Image,
		"sleep", "infinity",
	}
	id, err := m.runtimeCmd(ctx, args...)
	if err != nil {
		return "", err
	}

	// The config's paths.root is a host path; inside the container the
	// workspace root (OAuth store included) lives at the bind-mount
	// target, so the proxy gets an explicit root override.
	_, err = m.runtimeCmd(ctx, "exec", "-d", id,
		"mcphub", "proxy",
		"--config", "/etc/mcphub/mcphub.yaml",
		"--root", containerRoot,
		"--listen", fmt.Sprintf(":%d", m.cfg.ProxyPort),
	)
	if err != nil {
		_, _ = m.runtimeCmd(context.WithoutCancel(ctx), "rm", "-f", id)
		return "", err
	}
	return id, nil
}

// stopContainer stops and removes one container. Best effort, idempotent.
func (m *Manager) stopContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, _ = m.runtimeCmd(ctx, "stop", "--time", "2", id)
	_, _ = m.runtimeCmd(ctx, "rm", "-f", id)
}
