package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned when a signed local URL fails verification
var ErrInvalidSignature = errors.New("invalid or expired signature")

// LocalConfig holds filesystem store settings
type LocalConfig struct {
	Root    string
	BaseURL string // public prefix the API serves assets under, e.g. http://localhost:8080/assets
	Secret  string
}

// Local is a Store on the local filesystem. Signed URLs carry an HMAC over
// the key and expiry and are verified by the API's asset route.
type Local struct {
	root    string
	baseURL string
	secret  []byte
	logger  *slog.Logger
	now     func() time.Time
}

// NewLocal creates the root directory if needed
func NewLocal(cfg LocalConfig, logger *slog.Logger) (*Local, error) {
	if cfg.Root == "" {
		return nil, errors.New("local store: empty root")
	}
	if cfg.Secret == "" {
		return nil, errors.New("local store: empty signing secret")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Local{
		root:    cfg.Root,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  []byte(cfg.Secret),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Path returns the file path of key
func (l *Local) Path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

// Upload writes r to a temporary file and renames it into place
func (l *Local) Upload(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", key, err)
	}

	l.logger.Debug("Object stored", slog.String("key", key))
	return l.baseURL + "/" + key, nil
}

// Download copies the stored file into w
func (l *Local) Download(_ context.Context, key string, w io.Writer) error {
	p, err := l.Path(key)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	return nil
}

// SignedURL returns base/key?expires=..&sig=..
func (l *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	expires := l.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", l.sign(key, expires))
	return l.baseURL + "/" + key + "?" + q.Encode(), nil
}

// Verify checks the expiry and signature of a signed URL's query values
func (l *Local) Verify(key, expires, sig string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if l.now().Unix() > exp {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(sig), []byte(l.sign(key, exp))) {
		return ErrInvalidSignature
	}
	return nil
}

func (l *Local) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
