package main

import (
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

const releasesURL = "https://api.github.com/repos/rendis/cdnflow/releases/latest"

// runUpdate replaces the running binary with the latest GitHub release and
// stops a running server so it can be restarted on the new version.
func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	skipVerify := fs.Bool("skip-verify", false, "skip SHA-256 checksum verification")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Printf("Current version: %s\n", version)
	client := &http.Client{Timeout: 120 * time.Second}

	release, err := fetchLatestRelease(client, releasesURL)
	if err != nil {
		return fmt.Errorf("check GitHub releases: %w", err)
	}
	if release == nil {
		fmt.Println("No GitHub releases found")
		return nil
	}
	if !isNewer(release.TagName, version) {
		fmt.Printf("Already up to date (%s)\n", version)
		return nil
	}
	fmt.Printf("New version available: %s\n", release.TagName)

	name, err := cdnflowAssetName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	asset := release.asset(name)
	if asset == nil {
		return fmt.Errorf("release %s has no binary for %s/%s", release.TagName, runtime.GOOS, runtime.GOARCH)
	}

	var expected string
	if !*skipVerify {
		expected = expectedChecksum(client, release, name)
	}

	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot determine executable path: %w", err)
	}
	if selfPath, err = filepath.EvalSymlinks(selfPath); err != nil {
		return fmt.Errorf("cannot resolve executable path: %w", err)
	}

	fmt.Printf("Downloading %s...\n", asset.Name)
	tmpDir, err := os.MkdirTemp("", "cdnflow-update-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	binPath, err := downloadRelease(client, asset.BrowserDownloadURL, tmpDir, expected)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if err := replaceBinary(selfPath, binPath); err != nil {
		return fmt.Errorf("cannot replace binary: %w", err)
	}
	fmt.Printf("Updated to %s\n", release.TagName)

	stopIfRunning()
	return nil
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (r *githubRelease) asset(name string) *githubAsset {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i]
		}
	}
	return nil
}

// fetchLatestRelease returns nil, nil when the repository has no releases.
func fetchLatestRelease(client httpGetter, url string) (*githubRelease, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("GitHub API returned %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

func isNewer(remote, local string) bool {
	if local == "dev" {
		return true
	}
	// git-describe builds ("v1.0.0-3-gabcdef") always update.
	if strings.Contains(strings.TrimPrefix(local, "v"), "-") {
		return true
	}
	return compareSemver(remote, local) > 0
}

func compareSemver(a, b string) int {
	ap, bp := semverParts(a), semverParts(b)
	for i := 0; i < 3; i++ {
		switch {
		case ap[i] > bp[i]:
			return 1
		case ap[i] < bp[i]:
			return -1
		}
	}
	return 0
}

func semverParts(v string) [3]int {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	var result [3]int
	for i, p := range parts {
		p, _, _ = strings.Cut(p, "-")
		result[i], _ = strconv.Atoi(p)
	}
	return result
}

func cdnflowAssetName(goos, goarch string) (string, error) {
	osName, archName, err := releasePlatform(goos, goarch)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cdnflow_%s_%s.tar.gz", osName, archName), nil
}

// expectedChecksum reads the digest of assetName from the release's
// checksums.txt. It returns "" when none is published.
func expectedChecksum(client httpGetter, release *githubRelease, assetName string) string {
	cs := release.asset("checksums.txt")
	if cs == nil {
		fmt.Fprintln(os.Stderr, "Warning: release has no checksums.txt, skipping verification")
		return ""
	}
	resp, err := client.Get(cs.BrowserDownloadURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot download checksums.txt: %v\n", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Warning: checksums.txt returned %d\n", resp.StatusCode)
		return ""
	}

	sums, err := parseChecksumFile(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return ""
	}
	return sums[assetName]
}

// downloadRelease fetches and verifies a release archive, then extracts the
// cdnflow binary into dir.
func downloadRelease(client httpGetter, url, dir, expected string) (string, error) {
	archivePath, err := downloadToTempFile(url, dir, client)
	if err != nil {
		return "", err
	}
	if err := verifyChecksum(archivePath, expected); err != nil {
		return "", err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := extractTarGz(f, dir, "cdnflow"); err != nil {
		return "", err
	}

	binPath := filepath.Join(dir, "cdnflow")
	if err := os.Chmod(binPath, 0o755); err != nil {
		return "", err
	}
	return binPath, nil
}

func replaceBinary(selfPath, newPath string) error {
	// Rename works on Unix even while the binary is running.
	if err := os.Rename(newPath, selfPath); err == nil {
		return nil
	}
	// Cross-filesystem fallback: copy over.
	src, err := os.Open(newPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(selfPath, os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// stopIfRunning sends SIGTERM to a running server and waits up to 10s.
func stopIfRunning() {
	proc, ok := runningServer()
	if !ok {
		fmt.Println("Run `cdnflow serve` to start the server")
		return
	}

	fmt.Printf("Stopping running server (PID %d)...\n", proc.Pid)
	_ = proc.Signal(syscall.SIGTERM)
	for i := 0; i < 100; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			break
		}
	}
	fmt.Println("Run `cdnflow serve` to start the updated server")
}
