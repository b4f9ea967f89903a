package ort

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultOnnxRuntimeVersion is the ONNX Runtime release used when no
	// version is configured. Keep in step with the release validated by CI.
	DefaultOnnxRuntimeVersion = "1.23.1"

	defaultBootstrapBaseURL = "https://github.com/microsoft/onnxruntime/releases/download"
)

var errSharedLibraryNotFound = errors.New("ONNX Runtime shared library not found")
var cacheFallbackWarnOnce sync.Once

// BootstrapOption configures EnsureOnnxRuntimeSharedLibrary.
type BootstrapOption func(*bootstrapConfig) error

type bootstrapConfig struct {
	libraryPath     string
	cacheDir        string
	version         string
	disableDownload bool
	expectedSHA256  string
	baseURL         string
	httpClient      *http.Client
	goos            string
	goarch          string
}

// runtimeArtifact describes the upstream release archive for one platform.
type runtimeArtifact struct {
	platform         string
	archiveExtension string
	libraryGlob      string
}

// runtimeArtifacts is keyed by "GOOS/GOARCH".
var runtimeArtifacts = map[string]runtimeArtifact{
	"darwin/arm64":  {platform: "osx-arm64", archiveExtension: "tgz", libraryGlob: "libonnxruntime*.dylib"},
	"darwin/amd64":  {platform: "osx-x86_64", archiveExtension: "tgz", libraryGlob: "libonnxruntime*.dylib"},
	"linux/arm64":   {platform: "linux-aarch64", archiveExtension: "tgz", libraryGlob: "libonnxruntime.so*"},
	"linux/amd64":   {platform: "linux-x64", archiveExtension: "tgz", libraryGlob: "libonnxruntime.so*"},
	"windows/amd64": {platform: "win-x64", archiveExtension: "zip", libraryGlob: "onnxruntime*.dll"},
	"windows/arm64": {platform: "win-arm64", archiveExtension: "zip", libraryGlob: "onnxruntime*.dll"},
}

// WithBootstrapLibraryPath points bootstrap at an existing shared library,
// skipping cache lookup and download entirely.
func WithBootstrapLibraryPath(path string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		path = strings.TrimSpace(path)
		if path == "" {
			return fmt.Errorf("bootstrap library path cannot be empty")
		}
		cfg.libraryPath = path
		return nil
	}
}

// WithBootstrapCacheDir sets where bootstrap downloads and extracts runtimes.
func WithBootstrapCacheDir(dir string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return fmt.Errorf("bootstrap cache directory cannot be empty")
		}
		cfg.cacheDir = dir
		return nil
	}
}

// WithBootstrapVersion sets the ONNX Runtime version to fetch (for example
// "1.23.1").
func WithBootstrapVersion(version string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		version = strings.TrimSpace(version)
		if version == "" {
			return fmt.Errorf("bootstrap version cannot be empty")
		}
		cfg.version = version
		return nil
	}
}

// WithBootstrapDisableDownload makes bootstrap cache-only.
func WithBootstrapDisableDownload(disable bool) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		cfg.disableDownload = disable
		return nil
	}
}

// WithBootstrapExpectedSHA256 pins the expected archive checksum.
func WithBootstrapExpectedSHA256(checksum string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		checksum = strings.ToLower(strings.TrimSpace(checksum))
		if len(checksum) != 64 {
			return fmt.Errorf("expected SHA256 checksum must be 64 hex characters")
		}
		notHex := func(r rune) bool {
			return (r < '0' || r > '9') && (r < 'a' || r > 'f')
		}
		if strings.ContainsFunc(checksum, notHex) {
			return fmt.Errorf("expected SHA256 checksum must be lowercase hex")
		}
		cfg.expectedSHA256 = checksum
		return nil
	}
}

func withBootstrapBaseURL(baseURL string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return fmt.Errorf("bootstrap base URL cannot be empty")
		}
		cfg.baseURL = baseURL
		return nil
	}
}

func withBootstrapHTTPClient(client *http.Client) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if client == nil {
			return fmt.Errorf("bootstrap HTTP client cannot be nil")
		}
		cfg.httpClient = client
		return nil
	}
}

// EnsureOnnxRuntimeSharedLibrary resolves an ONNX Runtime shared library,
// downloading and caching the official release archive when needed, and
// returns its absolute path. Concurrent processes sharing a cache coordinate
// through a file lock.
func EnsureOnnxRuntimeSharedLibrary(opts ...BootstrapOption) (string, error) {
	cfg, err := resolveBootstrapConfig(opts...)
	if err != nil {
		return "", err
	}

	if cfg.libraryPath != "" {
		return validateLibraryFile(cfg.libraryPath)
	}

	artifact, err := resolveRuntimeArtifact(cfg.goos, cfg.goarch)
	if err != nil {
		return "", err
	}

	installDir := filepath.Join(cfg.cacheDir, artifact.archiveName(cfg.version))
	path, resolveErr := resolveExtractedLibraryPath(installDir, artifact)
	switch {
	case resolveErr == nil:
		return path, nil
	case !errors.Is(resolveErr, errSharedLibraryNotFound):
		return "", resolveErr
	}

	if cfg.disableDownload {
		return "", fmt.Errorf("ONNX Runtime library not found in cache and download is disabled: %s", installDir)
	}

	if err := os.MkdirAll(cfg.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create bootstrap cache directory %q: %w", cfg.cacheDir, err)
	}

	lockPath := filepath.Join(cfg.cacheDir, ".locks", fmt.Sprintf("%s-%s.lock", artifact.platform, cfg.version))
	var resolvedPath string
	err = withProcessFileLock(lockPath, func() error {
		// Another process may have installed while we waited for the lock.
		path, resolveErr := resolveExtractedLibraryPath(installDir, artifact)
		switch {
		case resolveErr == nil:
			resolvedPath = path
			return nil
		case !errors.Is(resolveErr, errSharedLibraryNotFound):
			return resolveErr
		}

		if err := downloadAndInstallRuntime(cfg, artifact, installDir); err != nil {
			return err
		}

		path, resolveErr = resolveExtractedLibraryPath(installDir, artifact)
		if resolveErr != nil {
			return fmt.Errorf("bootstrap completed but shared library could not be resolved: %w", resolveErr)
		}
		resolvedPath = path
		return nil
	})
	if err != nil {
		return "", err
	}

	return resolvedPath, nil
}

// InitializeEnvironmentWithBootstrap resolves a shared library via bootstrap,
// sets it as the runtime library path, and initializes the environment.
func InitializeEnvironmentWithBootstrap(opts ...BootstrapOption) error {
	path, err := EnsureOnnxRuntimeSharedLibrary(opts...)
	if err != nil {
		return err
	}

	mu.Lock()
	initialized := refCount > 0
	current := libPath
	mu.Unlock()

	if initialized && current != path {
		return fmt.Errorf("cannot change library path after environment is initialized")
	}

	if !initialized {
		if err := SetSharedLibraryPath(path); err != nil {
			// Another goroutine may have initialized after the check above;
			// that is only a conflict if it loaded a different library.
			mu.Lock()
			initialized = refCount > 0
			current = libPath
			mu.Unlock()
			if !initialized || current != path {
				return err
			}
		}
	}

	return InitializeEnvironment()
}

func resolveBootstrapConfig(opts ...BootstrapOption) (bootstrapConfig, error) {
	disableDownload, err := parseBootstrapBoolEnv("ONNXRUNTIME_DISABLE_DOWNLOAD")
	if err != nil {
		return bootstrapConfig{}, err
	}

	env := func(name string) string { return strings.TrimSpace(os.Getenv(name)) }
	cfg := bootstrapConfig{
		libraryPath:     env("ONNXRUNTIME_LIB_PATH"),
		cacheDir:        env("ONNXRUNTIME_CACHE_DIR"),
		version:         env("ONNXRUNTIME_VERSION"),
		disableDownload: disableDownload,
		baseURL:         defaultBootstrapBaseURL,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		goos:            runtime.GOOS,
		goarch:          runtime.GOARCH,
	}

	if cfg.version == "" {
		cfg.version = DefaultOnnxRuntimeVersion
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = defaultBootstrapCacheDir()
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return bootstrapConfig{}, err
		}
	}

	version, err := normalizeRuntimeVersion(cfg.version)
	if err != nil {
		return bootstrapConfig{}, err
	}
	cfg.version = version
	cfg.cacheDir = filepath.Clean(cfg.cacheDir)
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return bootstrapConfig{}, fmt.Errorf("bootstrap base URL is empty")
	}
	if cfg.httpClient == nil {
		return bootstrapConfig{}, fmt.Errorf("bootstrap HTTP client cannot be nil")
	}

	return cfg, nil
}

func resolveRuntimeArtifact(goos, goarch string) (runtimeArtifact, error) {
	artifact, ok := runtimeArtifacts[goos+"/"+goarch]
	if !ok {
		return runtimeArtifact{}, fmt.Errorf("unsupported platform for ONNX Runtime bootstrap: GOOS=%s GOARCH=%s", goos, goarch)
	}
	return artifact, nil
}

func (a runtimeArtifact) archiveName(version string) string {
	return fmt.Sprintf("onnxruntime-%s-%s", a.platform, version)
}

func (a runtimeArtifact) downloadURL(baseURL, version string) string {
	return fmt.Sprintf("%s/v%s/%s.%s", strings.TrimRight(baseURL, "/"), version, a.archiveName(version), a.archiveExtension)
}

func downloadAndInstallRuntime(cfg bootstrapConfig, artifact runtimeArtifact, installDir string) error {
	url := artifact.downloadURL(cfg.baseURL, cfg.version)
	archivePath, checksum, err := downloadRuntimeArchive(cfg, url)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(archivePath)
	}()

	if cfg.expectedSHA256 != "" && checksum != cfg.expectedSHA256 {
		return fmt.Errorf("download checksum mismatch: expected %s, got %s", cfg.expectedSHA256, checksum)
	}

	// Extract into a staging directory and rename into place so a partial
	// extraction never becomes a resolvable install.
	stagingRoot := installDir + fmt.Sprintf(".staging-%d", time.Now().UnixNano())
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create bootstrap staging directory %q: %w", stagingRoot, err)
	}
	defer func() {
		_ = os.RemoveAll(stagingRoot)
	}()

	if err := extractArchiveFile(archivePath, stagingRoot, artifact.archiveExtension); err != nil {
		return err
	}

	// Release archives nest everything under an "onnxruntime-<platform>-<ver>"
	// top-level directory; promote it when present.
	extractedDir := filepath.Join(stagingRoot, artifact.archiveName(cfg.version))
	if info, statErr := os.Stat(extractedDir); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("failed to inspect extracted install directory %q: %w", extractedDir, statErr)
		}
		extractedDir = stagingRoot
	} else if !info.IsDir() {
		return fmt.Errorf("extracted install path is not a directory: %q", extractedDir)
	}

	if _, err := resolveExtractedLibraryPath(extractedDir, artifact); err != nil {
		if errors.Is(err, errSharedLibraryNotFound) {
			return fmt.Errorf("downloaded archive did not contain expected shared library in %q", filepath.Join(extractedDir, "lib"))
		}
		return err
	}

	if err := os.RemoveAll(installDir); err != nil {
		return fmt.Errorf("failed to remove previous ONNX Runtime install at %q: %w", installDir, err)
	}
	if err := os.Rename(extractedDir, installDir); err != nil {
		return fmt.Errorf("failed to install ONNX Runtime to %q: %w", installDir, err)
	}
	return nil
}

func downloadRuntimeArchive(cfg bootstrapConfig, url string) (archivePath string, checksum string, err error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create download request for %q: %w", url, err)
	}

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to download ONNX Runtime archive from %q: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		body := strings.TrimSpace(string(snippet))
		if body == "" {
			return "", "", fmt.Errorf("failed to download ONNX Runtime archive from %q: HTTP %d", url, resp.StatusCode)
		}
		return "", "", fmt.Errorf("failed to download ONNX Runtime archive from %q: HTTP %d: %s", url, resp.StatusCode, body)
	}

	if err := os.MkdirAll(cfg.cacheDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create cache directory %q: %w", cfg.cacheDir, err)
	}

	tmp, err := os.CreateTemp(cfg.cacheDir, "onnxruntime-*.archive")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temporary archive file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		closeErr := tmp.Close()
		if err == nil && closeErr != nil {
			err = closeErr
		}
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	digest := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(tmp, digest), resp.Body)
	if copyErr != nil {
		return "", "", fmt.Errorf("failed to write ONNX Runtime archive to %q: %w", tmpPath, copyErr)
	}
	if written == 0 {
		return "", "", fmt.Errorf("downloaded ONNX Runtime archive is empty")
	}

	keep = true
	return tmpPath, hex.EncodeToString(digest.Sum(nil)), nil
}

func extractArchiveFile(archivePath, destDir, extension string) error {
	switch extension {
	case "tgz":
		return extractTGZArchive(archivePath, destDir)
	case "zip":
		return extractZIPArchive(archivePath, destDir)
	default:
		return fmt.Errorf("unsupported archive extension %q", extension)
	}
}

func extractTGZArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %q: %w", archivePath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip archive %q: %w", archivePath, err)
	}
	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)
	extracted := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry from %q: %w", archivePath, err)
		}

		target, err := secureArchiveJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		// Links and device files are skipped; the shared library and its
		// companions are regular files.
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeExtractedFile(target, tr, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
			extracted++
		}
	}

	if extracted == 0 {
		return fmt.Errorf("archive %q did not contain regular files", archivePath)
	}
	return nil
}

func extractZIPArchive(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open ZIP archive %q: %w", archivePath, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	extracted := 0
	for _, entry := range zr.File {
		target, err := secureArchiveJoin(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", target, err)
			}
			continue
		}

		if err := extractZIPEntry(entry, target); err != nil {
			return err
		}
		extracted++
	}

	if extracted == 0 {
		return fmt.Errorf("archive %q did not contain regular files", archivePath)
	}
	return nil
}

func extractZIPEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open ZIP entry %q: %w", entry.Name, err)
	}
	writeErr := writeExtractedFile(target, rc, entry.Mode().Perm())
	closeErr := rc.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close ZIP entry %q: %w", entry.Name, closeErr)
	}
	return nil
}

func writeExtractedFile(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %q: %w", target, err)
	}
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create extracted file %q: %w", target, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to extract file %q: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close extracted file %q: %w", target, err)
	}
	return nil
}

func resolveExtractedLibraryPath(installDir string, artifact runtimeArtifact) (string, error) {
	libDir := filepath.Join(installDir, "lib")

	matches, err := filepath.Glob(filepath.Join(libDir, artifact.libraryGlob))
	if err != nil {
		return "", fmt.Errorf("failed to resolve ONNX Runtime library path: %w", err)
	}
	sort.Strings(matches)

	var invalidCandidates []error
	for _, match := range matches {
		path, err := validateLibraryFile(match)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			invalidCandidates = append(invalidCandidates, fmt.Errorf("%s: %w", match, err))
		}
	}

	if len(invalidCandidates) > 0 {
		return "", fmt.Errorf("found ONNX Runtime shared library candidates in %q but none are valid: %w", libDir, errors.Join(invalidCandidates...))
	}
	return "", errSharedLibraryNotFound
}

func validateLibraryFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("library path is empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err != nil:
		return "", fmt.Errorf("failed to stat library file %q: %w", abs, err)
	case info.IsDir():
		return "", fmt.Errorf("library path points to a directory: %q", abs)
	case info.Size() == 0:
		return "", fmt.Errorf("library file is empty: %q", abs)
	}

	return abs, nil
}

// withProcessFileLock serializes fn across processes sharing lockPath. It
// blocks until the lock is available; a slow first-run download in another
// process is expected, not an error.
func withProcessFileLock(lockPath string, fn func() error) (err error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory for %q: %w", lockPath, err)
	}

	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %q: %w", lockPath, err)
	}

	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return fmt.Errorf("failed to acquire lock %q: %w", lockPath, err)
	}

	defer func() {
		err = errors.Join(err, unlockFile(lock), lock.Close())
	}()

	if fn == nil {
		return nil
	}
	return fn()
}

// secureArchiveJoin joins an archive entry path under baseDir, rejecting
// absolute paths, drive letters, and traversal outside baseDir.
func secureArchiveJoin(baseDir, archivePath string) (string, error) {
	archivePath = strings.TrimSpace(archivePath)
	if archivePath == "" {
		return "", fmt.Errorf("invalid empty archive entry path")
	}

	normalized := strings.ReplaceAll(archivePath, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("invalid absolute archive entry path %q", archivePath)
	}
	if len(normalized) >= 2 && isASCIILetter(normalized[0]) && normalized[1] == ':' {
		return "", fmt.Errorf("invalid archive entry path with drive letter %q", archivePath)
	}

	cleaned := filepath.Clean(normalized)
	if cleaned == "." {
		return "", fmt.Errorf("invalid archive entry path %q", archivePath)
	}

	targetPath := filepath.Join(baseDir, cleaned)
	relPath, err := filepath.Rel(baseDir, targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve archive path %q: %w", archivePath, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("unsafe archive entry path %q", archivePath)
	}

	return targetPath, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func defaultBootstrapCacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "listen2", "onnxruntime")
	}

	fallback := filepath.Join(os.TempDir(), "listen2", "onnxruntime")
	cacheFallbackWarnOnce.Do(func() {
		log.Printf("WARNING: failed to resolve user cache directory (%v); using temporary ONNX Runtime cache at %q. Set ONNXRUNTIME_CACHE_DIR for a persistent cache.", err, fallback)
	})
	return fallback
}

func normalizeRuntimeVersion(version string) (string, error) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return "", fmt.Errorf("ONNX Runtime version is empty")
	}

	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("ONNX Runtime version must have format x.y.z, got %q", version)
	}
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("ONNX Runtime version must have format x.y.z, got %q", version)
		}
		if _, err := strconv.Atoi(part); err != nil {
			return "", fmt.Errorf("ONNX Runtime version must have numeric segments, got %q", version)
		}
	}

	return version, nil
}

func parseBootstrapBoolEnv(name string) (bool, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return false, nil
	}

	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed, nil
	}

	switch strings.ToLower(value) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value for %s: %q (expected true/false, 1/0, yes/no, on/off)", name, value)
	}
}
