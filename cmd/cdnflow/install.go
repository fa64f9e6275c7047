package main

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const mermaidASCIIVersion = "1.1.0"

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// runInstall writes settings.json from flags, fetches mermaid-ascii and
// then either signals a running server to reload or starts one.
func runInstall(args []string) error {
	def := defaultConfig()
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", def.ListenAddr, "TCP listen address")
	baseURL := fs.String("base-url", "", "public base URL (derived from listen-addr if empty)")
	storage := fs.String("storage", def.Storage, "storage backend: libsql, redis, memory")
	dbPath := fs.String("db-path", def.DBPath, "libSQL database path")
	redisAddr := fs.String("redis-addr", "", "redis address when storage is redis")
	namespace := fs.String("namespace", def.Namespace, "storage key namespace")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	panelFlag := fs.Bool("panel", def.Panel, "enable the panel API")
	backupCron := fs.String("backup-cron", "", "cron expression for workflow backups (empty disables)")
	noServe := fs.Bool("no-serve", false, "only write configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := cdnflowDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	cfg := def
	cfg.ListenAddr = *listenAddr
	cfg.BaseURL = *baseURL
	cfg.Storage = *storage
	cfg.DBPath = *dbPath
	cfg.RedisAddr = *redisAddr
	cfg.Namespace = *namespace
	cfg.LogLevel = *logLevel
	cfg.Panel = *panelFlag
	cfg.BackupCron = *backupCron
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	fmt.Printf("Config written to %s\n", path)

	installMermaidASCII(binDir())

	if *noServe || signalRunningServer() {
		return nil
	}
	return runServe()
}

// signalRunningServer sends SIGHUP to a running cdnflow server (via pidfile).
// Returns true if the server was signaled (caller should NOT start a new one).
func signalRunningServer() bool {
	proc, ok := runningServer()
	if !ok {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", proc.Pid)
	return true
}

// runningServer returns the live process named by the pidfile.
func runningServer() (*os.Process, bool) {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return nil, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, false
	}
	return proc, true
}

// installMermaidASCII downloads the mermaid-ascii binary to dir.
// Failures only print a warning; ASCII diagrams then use the built-in renderer.
func installMermaidASCII(dir string) {
	destPath := filepath.Join(dir, "mermaid-ascii")
	if _, err := os.Stat(destPath); err == nil {
		fmt.Printf("mermaid-ascii already installed at %s\n", destPath)
		return
	}

	if err := fetchMermaidASCII(dir, &http.Client{Timeout: 60 * time.Second}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, ASCII diagrams will use the built-in renderer\n", err)
		_ = os.Remove(destPath)
		return
	}
	fmt.Printf("mermaid-ascii installed to %s\n", destPath)
}

func fetchMermaidASCII(dir string, client httpGetter) error {
	assetName, err := mermaidASCIIAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/%s/%s",
		mermaidASCIIVersion, assetName)

	fmt.Printf("Downloading mermaid-ascii %s...\n", mermaidASCIIVersion)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	tmpPath, err := downloadToTempFile(url, dir, client)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer os.Remove(tmpPath)

	if err := verifyChecksum(tmpPath, mermaidASCIIChecksums[assetName]); err != nil {
		return fmt.Errorf("%s: %w", assetName, err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := extractTarGz(f, dir, "mermaid-ascii"); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return os.Chmod(filepath.Join(dir, "mermaid-ascii"), 0o755)
}

// mermaidASCIIAssetName returns the GitHub release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	osName, archName, err := releasePlatform(goos, goarch)
	if err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w", err)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// releasePlatform maps GOOS/GOARCH to goreleaser archive naming.
func releasePlatform(goos, goarch string) (string, string, error) {
	var osName, archName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", "", fmt.Errorf("unsupported OS %q", goos)
	}
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", "", fmt.Errorf("unsupported architecture %q", goarch)
	}
	return osName, archName, nil
}

// extractTarGz extracts a specific file from a tar.gz archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		// Archives may nest the binary under a directory.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
