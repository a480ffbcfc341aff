package usergate_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBinaryAndEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/usergate") {
		t.Error("Dockerfile should build ./cmd/usergate")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/usr/local/bin/usergate"]`) {
		t.Error("Dockerfile should use the usergate binary as ENTRYPOINT")
	}
	// distrolessにはシェルがないため、healthcheckサブコマンドを使う
	if !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should call the healthcheck subcommand")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, svc := range []string{"api:", "worker:", "migrate:", "db:", "redis:"} {
		if !strings.Contains(content, svc) {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
	for _, image := range []string{"postgres:", "redis:7"} {
		if !strings.Contains(content, image) {
			t.Errorf("docker-compose.yml should use image %q", image)
		}
	}
}

func TestDockerComposeSubcommands(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, cmd := range []string{`["serve"]`, `["worker"]`, `["migrate"]`} {
		if !strings.Contains(content, cmd) {
			t.Errorf("docker-compose.yml should run subcommand %s", cmd)
		}
	}
}

func TestDockerComposeNetworks(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	// DBとRedisは外部から到達できない内部ネットワークに置く
	if !strings.Contains(content, "internal: true") {
		t.Error("docker-compose.yml should define an internal network (internal: true)")
	}
	if !strings.Contains(content, "external") {
		t.Error("docker-compose.yml should define an external network for the api")
	}
}
