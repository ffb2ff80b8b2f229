package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/security"
)

// Image is image content ready for upload
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Handler loads image references for submission and stores uploaded files
type Handler interface {
	// Load resolves a stored image reference: a file name under the upload
	// directory, an absolute path inside it, or an http(s) URL.
	Load(ctx context.Context, ref string) (*Image, error)
	// SaveUpload writes an uploaded file as <unix>_<sanitized-name> and returns the stored name.
	SaveUpload(originalName string, r io.Reader) (string, error)
	// UploadDir returns the directory stored uploads live in
	UploadDir() string
}

// Config controls a Handler
type Config struct {
	UploadDir         string
	MaxUploadBytes    int64
	MaxDownloadBytes  int64
	AllowedExtensions []string
	HTTPClient        *http.Client
	Now               func() time.Time
}

type handler struct {
	uploadDir        string
	maxUploadBytes   int64
	maxDownloadBytes int64
	allowed          map[string]bool
	httpClient       *http.Client
	now              func() time.Time
}

func NewHandler(cfg Config) (Handler, error) {
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	abs, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}

	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = constants.DefaultImageTypes
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	h := &handler{
		uploadDir:        abs,
		maxUploadBytes:   cfg.MaxUploadBytes,
		maxDownloadBytes: cfg.MaxDownloadBytes,
		allowed:          allowed,
		httpClient:       cfg.HTTPClient,
		now:              cfg.Now,
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = int64(constants.DefaultMaxUploadSizeMB) << 20
	}
	if h.maxDownloadBytes <= 0 {
		h.maxDownloadBytes = int64(constants.DefaultMaxImageDownloadSizeMB) << 20
	}
	if h.httpClient == nil {
		h.httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second}
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h, nil
}

func (h *handler) UploadDir() string {
	return h.uploadDir
}

func (h *handler) Load(ctx context.Context, ref string) (*Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("image reference is empty")
	}
	if isURL(ref) {
		return h.loadFromURL(ctx, ref)
	}
	return h.loadFromFile(ref)
}

func (h *handler) loadFromFile(ref string) (*Image, error) {
	name := ref
	if filepath.IsAbs(ref) {
		rel, err := filepath.Rel(h.uploadDir, filepath.Clean(ref))
		if err != nil {
			return nil, fmt.Errorf("image path outside upload directory: %s", ref)
		}
		name = rel
	}

	path, err := security.ResolveWithinBase(h.uploadDir, name)
	if err != nil {
		return nil, fmt.Errorf("invalid image path: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 - path is confined to the upload directory
	if err != nil {
		return nil, fmt.Errorf("image file not readable: %w", err)
	}
	defer f.Close()

	data, err := readLimited(f, h.maxDownloadBytes)
	if err != nil {
		return nil, err
	}
	return h.buildImage(filepath.Base(path), data)
}

func (h *handler) loadFromURL(ctx context.Context, imageURL string) (*Image, error) {
	if err := validateImageURL(imageURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed with status: %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.maxDownloadBytes)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(req.URL.Path)
	if name == "." || name == "/" || name == "" {
		name = "image"
	}
	return h.buildImage(name, data)
}

func (h *handler) SaveUpload(originalName string, r io.Reader) (string, error) {
	name := security.SanitizeFilename(originalName)
	if name == "" {
		return "", fmt.Errorf("invalid file name")
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !h.allowed[ext] {
		return "", fmt.Errorf("file type .%s is not allowed", ext)
	}

	stored := fmt.Sprintf("%d_%s", h.now().Unix(), name)
	path, err := security.ResolveWithinBase(h.uploadDir, stored)
	if err != nil {
		return "", err
	}

	data, err := readLimited(r, h.maxUploadBytes)
	if err != nil {
		return "", err
	}
	if kind, ok := detectImageType(data); !ok || !h.allowed[kind] {
		return "", fmt.Errorf("file content is not a supported image")
	}

	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return stored, nil
}

func (h *handler) buildImage(name string, data []byte) (*Image, error) {
	ext, ok := detectImageType(data)
	if !ok {
		return nil, fmt.Errorf("content of %s is not a supported image", name)
	}

	mimeType, ok := constants.MimeTypes["."+ext]
	if !ok {
		mimeType = constants.DefaultMimeType
	}

	if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), ext) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
	}
	return &Image{Name: name, MimeType: mimeType, Data: data}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", limit)
	}
	return data, nil
}

// detectImageType sniffs magic bytes
func detectImageType(data []byte) (string, bool) {
	for sig, ext := range constants.FileSignatures {
		if len(data) >= len(sig) && string(data[:len(sig)]) == sig {
			return ext, true
		}
	}
	return "", false
}

func isURL(str string) bool {
	lower := strings.ToLower(str)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// PreviewPath returns the browser path for an image reference: remote URLs
// unchanged, local files as /uploads/<basename>.
func PreviewPath(ref string) string {
	if ref == "" {
		return ""
	}
	if isURL(ref) {
		return ref
	}
	return "/uploads/" + filepath.Base(ref)
}
