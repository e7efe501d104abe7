// Package sources resolves background video references to local, probed files.
// A reference is a local path or an http(s)://, gs:// or s3:// URL; remote
// objects are downloaded into the caller's scratch directory.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	"google.golang.org/api/option"

	"github.com/arpan404/img/internal/logger"
	"github.com/arpan404/img/internal/ports"
	"github.com/arpan404/img/internal/types"
)

var (
	ErrNotFound = errors.New("source not found")
	ErrNotVideo = errors.New("source is not a video")
)

// S3Options tune the S3 client; empty values fall back to the AWS default chain.
type S3Options struct {
	Region       string
	Profile      string
	Endpoint     string
	UsePathStyle bool
}

type Resolver struct {
	prober    ports.VideoProber
	configDir string
	videosDir string
	http      *http.Client
	gcsOpts   []option.ClientOption
	s3Opts    S3Options
	logger    *slog.Logger

	mu  sync.Mutex
	gcs *storage.Client
	s3  *s3.Client
}

type Option func(*Resolver)

// WithConfigDir adds the directory of the content file to the search path.
func WithConfigDir(dir string) Option { return func(r *Resolver) { r.configDir = dir } }

// WithVideosDir adds the default videos directory to the search path.
func WithVideosDir(dir string) Option { return func(r *Resolver) { r.videosDir = dir } }

func WithHTTPClient(c *http.Client) Option { return func(r *Resolver) { r.http = c } }

func WithGCSOptions(opts ...option.ClientOption) Option {
	return func(r *Resolver) { r.gcsOpts = append(r.gcsOpts, opts...) }
}

func WithS3(o S3Options) Option { return func(r *Resolver) { r.s3Opts = o } }

func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

func New(prober ports.VideoProber, opts ...Option) *Resolver {
	r := &Resolver{
		prober: prober,
		http:   &http.Client{Timeout: 10 * time.Minute},
		logger: logger.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds or fetches ref, checks that it is a video and probes it.
func (r *Resolver) Resolve(ctx context.Context, ref, scratchDir string) (types.SourceInfo, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.SourceInfo{}, fmt.Errorf("source: empty reference: %w", ErrNotFound)
	}

	var local string
	var err error
	u, perr := url.Parse(ref)
	switch {
	case perr == nil && (u.Scheme == "http" || u.Scheme == "https"):
		local, err = r.download(ctx, u, scratchDir)
	case perr == nil && u.Scheme == "gs":
		local, err = r.fetchGCS(ctx, u, scratchDir)
	case perr == nil && u.Scheme == "s3":
		local, err = r.fetchS3(ctx, u, scratchDir)
	default:
		local, err = r.findLocal(ref)
	}
	if err != nil {
		return types.SourceInfo{}, err
	}

	if err := sniff(local); err != nil {
		return types.SourceInfo{}, err
	}
	info, err := r.prober.ProbeVideo(ctx, local)
	if err != nil {
		return types.SourceInfo{}, fmt.Errorf("source %s: %w", ref, err)
	}
	info.Path = local
	r.logger.Debug("source resolved", "ref", ref, "path", local, "duration", info.Duration, "width", info.Width, "height", info.Height)
	return info, nil
}

// findLocal tries ref as given, then relative to the content file directory,
// then relative to the default videos directory.
func (r *Resolver) findLocal(ref string) (string, error) {
	candidates := []string{ref}
	if !filepath.IsAbs(ref) {
		for _, dir := range []string{r.configDir, r.videosDir} {
			if dir != "" {
				candidates = append(candidates, filepath.Join(dir, ref))
			}
		}
	}
	for _, c := range candidates {
		st, err := os.Stat(c)
		if err == nil && st.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("source %q (tried %s): %w", ref, strings.Join(candidates, ", "), ErrNotFound)
}

// sniff reads the file header and rejects anything that is not a known video
// container.
func sniff(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("source %s: %w", p, err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("source %s: %w", p, err)
	}
	if !filetype.IsVideo(head[:n]) {
		return fmt.Errorf("source %s: %w", p, ErrNotVideo)
	}
	return nil
}

// localName picks the scratch file name for a remote object, keeping its
// extension so tools can guess the container.
func localName(scratchDir, objectPath string) string {
	ext := strings.ToLower(path.Ext(objectPath))
	if ext == "" || len(ext) > 5 {
		ext = ".mp4"
	}
	return filepath.Join(scratchDir, "source"+ext)
}

// save streams body into dst; dst is removed when the copy fails.
func save(dst string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
