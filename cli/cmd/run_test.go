package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/artifact"
	gbconfig "github.com/MateoLopez004/Gobackup/cli/config"
	"github.com/MateoLopez004/Gobackup/remote"
	"github.com/MateoLopez004/Gobackup/remote/remotetest"
	"github.com/MateoLopez004/Gobackup/runtime"
	"github.com/MateoLopez004/Gobackup/types"
)

// newTestCLIContext builds a context whose string flags have the given
// defaults; only flagValues count as explicitly set.
func newTestCLIContext(t *testing.T, flagValues, defaults map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaults {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		if d, ok := defaults[name]; ok {
			fs.String(name, d, "")
		} else {
			fs.String(name, val, "")
		}
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

// newRunContext parses args against the run command's real flag set.
func newRunContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	for _, f := range RunCommand().Flags {
		if err := f.Apply(fs); err != nil {
			t.Fatalf("apply flag %v: %v", f.Names(), err)
		}
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse %v: %v", args, err)
	}
	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"server": "http://cli:1"}, nil)
	if got := resolveString(c, "server", "http://config:2"); got != "http://cli:1" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"server": DefaultServer})
	if got := resolveString(c, "server", "http://config:2"); got != "http://config:2" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_UrfaveDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"output-backend": "link"})
	if got := resolveString(c, "output-backend", ""); got != "link" {
		t.Errorf("expected urfave default, got %q", got)
	}
}

func TestConfigVal(t *testing.T) {
	get := func(c *gbconfig.Config) string { return c.Server.URL }
	if got := configVal(nil, get); got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
	cfg := &gbconfig.Config{Server: gbconfig.ServerConfig{URL: "http://from-config"}}
	if got := configVal(cfg, get); got != "http://from-config" {
		t.Errorf("expected from-config, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	c := newRunContext(t, "--max-attempts", "5")
	if got := resolveInt(c, "max-attempts", 50); got != 5 {
		t.Errorf("expected CLI to win with 5, got %d", got)
	}
	c = newRunContext(t)
	if got := resolveInt(c, "max-attempts", 50); got != 50 {
		t.Errorf("expected config fallback 50, got %d", got)
	}
	if got := resolveInt(c, "max-attempts", 0); got != 300 {
		t.Errorf("expected flag default 300, got %d", got)
	}
}

func TestResolveBool(t *testing.T) {
	c := newRunContext(t, "--cleanup")
	if !resolveBool(c, "cleanup", false) {
		t.Error("expected CLI true to win")
	}
	c = newRunContext(t, "--cleanup=false")
	if resolveBool(c, "cleanup", true) {
		t.Error("explicit --cleanup=false should override config")
	}
	c = newRunContext(t)
	if !resolveBool(c, "cleanup", true) {
		t.Error("expected config true when flag unset")
	}
}

func TestResolveDuration(t *testing.T) {
	c := newRunContext(t, "--interval", "250ms")
	if got := resolveDuration(c, "interval", 5*time.Second); got != 250*time.Millisecond {
		t.Errorf("expected CLI 250ms to win, got %v", got)
	}
	c = newRunContext(t)
	if got := resolveDuration(c, "interval", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected config fallback 5s, got %v", got)
	}
}

func TestResolveRunChoice_Defaults(t *testing.T) {
	choice, err := resolveRunChoice(newRunContext(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choice.server != DefaultServer {
		t.Errorf("server = %q", choice.server)
	}
	if choice.interval != 2*time.Second || choice.maxAttempts != 300 {
		t.Errorf("polling = %v/%d, want 2s/300", choice.interval, choice.maxAttempts)
	}
	if choice.settleDelay != artifact.DefaultSettleDelay {
		t.Errorf("settle delay = %v", choice.settleDelay)
	}
	if choice.output.backend != artifact.BackendLink {
		t.Errorf("backend = %q", choice.output.backend)
	}
	if choice.adapter != nil {
		t.Errorf("expected no adapter, got %+v", choice.adapter)
	}
}

func TestResolveRunChoice_ConfigFallback(t *testing.T) {
	zero := gbconfig.Duration{}
	retries := 0
	cfg := &gbconfig.Config{
		Server:  gbconfig.ServerConfig{URL: "http://cfg:9000", Headers: map[string]string{"X-Team": "ops"}},
		Polling: gbconfig.PollingConfig{Interval: gbconfig.Duration{Duration: time.Second}, MaxAttempts: 10, SettleDelay: &zero},
		Output:  gbconfig.OutputConfig{Backend: "fs", Path: "/var/backups"},
		Adapter: gbconfig.AdapterConfig{Type: "redis", URL: "redis://localhost:6379/0", Retries: &retries},
		Cleanup: true,
	}
	choice, err := resolveRunChoice(newRunContext(t, "--max-attempts", "20"), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choice.server != "http://cfg:9000" || choice.headers["X-Team"] != "ops" {
		t.Errorf("server = %q headers = %v", choice.server, choice.headers)
	}
	if choice.interval != time.Second {
		t.Errorf("interval = %v, want config 1s", choice.interval)
	}
	if choice.maxAttempts != 20 {
		t.Errorf("max attempts = %d, want CLI 20", choice.maxAttempts)
	}
	if choice.settleDelay != 0 {
		t.Errorf("explicit settle_delay: 0s should disable the wait, got %v", choice.settleDelay)
	}
	if choice.output.backend != "fs" || choice.output.path != "/var/backups" {
		t.Errorf("output = %+v", choice.output)
	}
	if !choice.cleanup {
		t.Error("cleanup should come from config")
	}
	if choice.adapter == nil || choice.adapter.adapterType != "redis" || choice.adapter.retries != 0 {
		t.Errorf("adapter = %+v", choice.adapter)
	}
}

func TestResolveRunChoice_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown backend", []string{"--output-backend", "ftp"}, "invalid --output-backend"},
		{"fs without path", []string{"--output-backend", "fs"}, "--output-path is required"},
		{"s3 without path", []string{"--output-backend", "s3"}, "--output-path is required"},
		{"zero attempts", []string{"--max-attempts", "0"}, "--max-attempts must be positive"},
		{"zero interval", []string{"--interval", "0s"}, "--interval must be positive"},
		{"negative settle", []string{"--settle-delay", "-1s"}, "--settle-delay must not be negative"},
		{"unknown adapter", []string{"--adapter", "kafka", "--adapter-url", "x"}, "unknown adapter type"},
		{"adapter without url", []string{"--adapter", "webhook"}, "--adapter-url is required when --adapter=webhook"},
		{"bad header", []string{"--adapter", "webhook", "--adapter-url", "http://h", "--adapter-header", "novalue"}, "invalid --adapter-header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveRunChoice(newRunContext(t, tt.args...), nil)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestParseAdapterConfig_HeadersMerged(t *testing.T) {
	c := newRunContext(t,
		"--adapter-url", "https://hooks.example.com/gobackup",
		"--adapter-header", "Authorization=Bearer cli",
		"--adapter-header", "X-Extra=1",
	)
	cfg := &gbconfig.Config{Adapter: gbconfig.AdapterConfig{
		Headers: map[string]string{"Authorization": "Bearer config", "X-Team": "ops"},
	}}
	ac, err := parseAdapterConfigWithPrecedence(c, cfg, "webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"Authorization": "Bearer cli", "X-Extra": "1", "X-Team": "ops"}
	for k, v := range want {
		if ac.headers[k] != v {
			t.Errorf("header %s = %q, want %q", k, ac.headers[k], v)
		}
	}
	if ac.retries != 3 {
		t.Errorf("retries = %d, want default 3", ac.retries)
	}
}

func TestParseAdapterConfig_RequireSubscriber(t *testing.T) {
	cfg := &gbconfig.Config{Adapter: gbconfig.AdapterConfig{RequireSubscriber: true}}

	ac, err := parseAdapterConfigWithPrecedence(newRunContext(t, "--adapter-url", "redis://localhost:6379/0"), cfg, "redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ac.requireSubscriber {
		t.Error("expected require_subscriber from config")
	}

	ac, err = parseAdapterConfigWithPrecedence(newRunContext(t,
		"--adapter-url", "redis://localhost:6379/0",
		"--adapter-require-subscriber=false",
	), cfg, "redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.requireSubscriber {
		t.Error("flag should override config")
	}
}

func TestBuildAdapter(t *testing.T) {
	if ad, err := buildAdapter(nil); err != nil || ad != nil {
		t.Fatalf("nil choice should build no adapter, got %v, %v", ad, err)
	}
	for _, ac := range []*adapterChoice{
		{adapterType: "webhook", url: "https://hooks.example.com", retries: 1},
		{adapterType: "redis", url: "redis://localhost:6379/0"},
	} {
		ad, err := buildAdapter(ac)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", ac.adapterType, err)
		}
		_ = ad.Close()
	}
	if _, err := buildAdapter(&adapterChoice{adapterType: "redis", url: "not a url"}); err == nil {
		t.Error("expected error for invalid redis URL")
	}
}

func TestBuildDeliverer(t *testing.T) {
	client, err := remote.New(remote.Config{BaseURL: "http://localhost:8080"})
	if err != nil {
		t.Fatal(err)
	}

	d, err := buildDeliverer(t.Context(), client, outputChoice{backend: artifact.BackendLink})
	if err != nil || d.Backend() != artifact.BackendLink {
		t.Fatalf("link deliverer = %v, %v", d, err)
	}
	d, err = buildDeliverer(t.Context(), client, outputChoice{backend: artifact.BackendFS, path: t.TempDir()})
	if err != nil || d.Backend() != artifact.BackendFS {
		t.Fatalf("fs deliverer = %v, %v", d, err)
	}
	if _, err := buildDeliverer(t.Context(), client, outputChoice{backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestCollectBlobs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "alpha")

	blobs, err := collectBlobs([]string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Name != "a.txt" || blobs[0].Size != 5 {
		t.Errorf("blobs = %+v", blobs)
	}

	if _, err := collectBlobs([]string{dir}); err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Errorf("expected directory error, got %v", err)
	}
	if _, err := collectBlobs([]string{filepath.Join(dir, "missing.txt")}); err == nil {
		t.Error("expected error for missing file")
	}
}

// --- end to end against the fake service ---

const testSession = "sess-cli"

func newFakeService(t *testing.T) *remotetest.Server {
	t.Helper()
	srv := remotetest.NewServer(t.Cleanup)
	srv.AckSessionID(testSession)
	srv.SetArtifact(testSession, []byte("PK archive bytes"))
	srv.ScriptStatus(
		types.StatusSnapshot{TotalFiles: 2, FilesCopied: 1, InProgress: true},
		types.StatusSnapshot{TotalFiles: 2, FilesCopied: 2},
	)
	return srv
}

// newTestApp creates an app with every command wired up and ExitErrHandler
// suppressed so errors are returned instead of calling os.Exit.
func newTestApp(out *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = "gobackup"
	app.Writer = out
	app.ErrWriter = out
	app.Commands = Commands("test")
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return ec.ExitCode()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runArgs(srv *remotetest.Server, extra ...string) []string {
	args := []string{"gobackup", "run",
		"--server", srv.URL,
		"--interval", "1ms",
		"--settle-delay", "0s",
		"--log-level", "error",
	}
	return append(args, extra...)
}

func TestRunAction_EndToEndFS(t *testing.T) {
	srv := newFakeService(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.txt", "bravo")
	outDir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "gobackup.prom")

	var out bytes.Buffer
	err := newTestApp(&out).Run(runArgs(srv,
		"--output-backend", "fs",
		"--output-path", outDir,
		"--report", reportPath,
		"--metrics-file", metricsPath,
		a, b,
	))
	if code := exitCode(t, err); code != runtime.ExitCodeDone {
		t.Fatalf("exit code = %d (%v)\n%s", code, err, out.String())
	}

	data, err := os.ReadFile(filepath.Join(outDir, "artifacts", testSession+".zip"))
	if err != nil {
		t.Fatalf("archive not delivered: %v", err)
	}
	if string(data) != "PK archive bytes" {
		t.Errorf("archive content = %q", data)
	}

	if got := srv.Triggers(); len(got) != 1 || got[0] != testSession {
		t.Errorf("triggers = %v", got)
	}
	if !strings.Contains(out.String(), "session_id="+testSession) {
		t.Errorf("missing result summary:\n%s", out.String())
	}

	raw, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report runtime.BackupReport
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("invalid report JSON: %v", err)
	}
	if report.SessionID != testSession || report.Outcome != types.StatusDone || report.FilesUploaded != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Delivery == nil || report.Delivery.Backend != artifact.BackendFS {
		t.Errorf("report delivery = %+v", report.Delivery)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(prom), `gobackup_uploads_total{outcome="succeeded",output_backend="fs"`) {
		t.Errorf("metrics file missing upload counter:\n%s", prom)
	}
}

func TestRunAction_LinkFromConfig(t *testing.T) {
	srv := newFakeService(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	cfgPath := writeFile(t, dir, "gobackup.yaml", "server:\n  url: "+srv.URL+"\npolling:\n  interval: 1ms\n  settle_delay: 0s\nlog:\n  level: error\n")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"gobackup", "run", "--config", cfgPath, a})
	if code := exitCode(t, err); code != runtime.ExitCodeDone {
		t.Fatalf("exit code = %d (%v)\n%s", code, err, out.String())
	}
	if !strings.Contains(out.String(), srv.URL+"/download/"+testSession) {
		t.Errorf("link delivery should print the download URL:\n%s", out.String())
	}
	if srv.DownloadCalls() != 0 {
		t.Errorf("link backend should not download, got %d calls", srv.DownloadCalls())
	}
}

func TestRunAction_ExitCodes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(srv *remotetest.Server)
		args  []string
		want  int
	}{
		{
			name:  "trigger failure",
			setup: func(srv *remotetest.Server) { srv.FailTrigger(500, "disk full") },
			want:  runtime.ExitCodeFailed,
		},
		{
			name:  "every upload rejected",
			setup: func(srv *remotetest.Server) { srv.RejectFile("a.txt", "file too large") },
			want:  runtime.ExitCodeFailed,
		},
		{
			name: "timeout",
			setup: func(srv *remotetest.Server) {
				srv.ScriptStatus(types.StatusSnapshot{TotalFiles: 1, InProgress: true})
			},
			args: []string{"--max-attempts", "3"},
			want: runtime.ExitCodeTimedOut,
		},
		{
			name:  "metadata failure",
			setup: func(srv *remotetest.Server) { srv.FailInfo(500) },
			want:  runtime.ExitCodeRetrieval,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeService(t)
			tt.setup(srv)
			a := writeFile(t, t.TempDir(), "a.txt", "alpha")

			var out bytes.Buffer
			args := append(runArgs(srv, "--quiet"), tt.args...)
			err := newTestApp(&out).Run(append(args, a))
			if code := exitCode(t, err); code != tt.want {
				t.Errorf("exit code = %d, want %d (%v)", code, tt.want, err)
			}
		})
	}
}

func TestRunAction_UsageErrors(t *testing.T) {
	srv := newFakeService(t)
	a := writeFile(t, t.TempDir(), "a.txt", "alpha")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no files", runArgs(srv), "at least one file"},
		{"missing file", runArgs(srv, "/nonexistent/file.txt"), "cannot read"},
		{"bad backend", runArgs(srv, "--output-backend", "ftp", a), "invalid --output-backend"},
		{"missing config", runArgs(srv, "--config", "/nonexistent/gobackup.yaml", a), "config file not found"},
		{"bad log level", runArgs(srv, "--log-level", "loud", a), "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := newTestApp(&out).Run(tt.args)
			if code := exitCode(t, err); code != runtime.ExitCodeFailed {
				t.Errorf("exit code = %d, want 1", code)
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %v should contain %q", err, tt.want)
			}
		})
	}
	if len(srv.Uploads()) != 0 {
		t.Errorf("usage errors must not upload, got %d uploads", len(srv.Uploads()))
	}
}

func TestRunAction_TraceThenReplay(t *testing.T) {
	srv := newFakeService(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	tracePath := filepath.Join(dir, "run.trace")

	var out bytes.Buffer
	err := newTestApp(&out).Run(runArgs(srv, "--quiet", "--trace", tracePath, a))
	if code := exitCode(t, err); code != runtime.ExitCodeDone {
		t.Fatalf("exit code = %d (%v)", code, err)
	}

	out.Reset()
	if err := newTestApp(&out).Run([]string{"gobackup", "replay", "--format", "json", tracePath}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	var resp ReplayResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("invalid replay JSON: %v\n%s", err, out.String())
	}
	if resp.SessionID != testSession {
		t.Errorf("session = %q", resp.SessionID)
	}
	if resp.CompletedAt != 2 || resp.CompletionPath != types.PathPrimary {
		t.Errorf("completion = attempt %d path %q, want attempt 2 primary", resp.CompletedAt, resp.CompletionPath)
	}
	if resp.Drift != 0 {
		t.Errorf("drift = %d", resp.Drift)
	}
}
