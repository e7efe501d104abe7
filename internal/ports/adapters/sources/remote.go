package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/googleapi"

	"github.com/arpan404/img/internal/retry"
)

func (r *Resolver) download(ctx context.Context, u *url.URL, scratchDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", u.Redacted(), err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		err = fmt.Errorf("source %s: %w", u.Redacted(), err)
		if ctx.Err() != nil {
			return "", err
		}
		return "", retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("source %s: http status %d", u.Redacted(), resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			err = fmt.Errorf("%w: %w", err, ErrNotFound)
		}
		return "", markTransient(err, resp.StatusCode, nil)
	}

	dst := localName(scratchDir, u.Path)
	if err := save(dst, resp.Body); err != nil {
		return "", markTransient(fmt.Errorf("source %s: download: %w", u.Redacted(), err), 0, err)
	}
	return dst, nil
}

func (r *Resolver) gcsClient(ctx context.Context) (*storage.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gcs != nil {
		return r.gcs, nil
	}
	c, err := storage.NewClient(ctx, r.gcsOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	r.gcs = c
	return c, nil
}

func (r *Resolver) fetchGCS(ctx context.Context, u *url.URL, scratchDir string) (string, error) {
	bucket, object := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return "", fmt.Errorf("source %s: want gs://bucket/object", u)
	}
	c, err := r.gcsClient(ctx)
	if err != nil {
		return "", err
	}
	rd, err := c.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return "", fmt.Errorf("source %s: %w: %w", u, err, ErrNotFound)
		}
		return "", markTransient(fmt.Errorf("source %s: %w", u, err), googleStatus(err), err)
	}
	defer rd.Close()

	dst := localName(scratchDir, object)
	if err := save(dst, rd); err != nil {
		return "", markTransient(fmt.Errorf("source %s: download: %w", u, err), 0, err)
	}
	return dst, nil
}

func googleStatus(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

func (r *Resolver) s3Client(ctx context.Context) (*s3.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s3 != nil {
		return r.s3, nil
	}
	var loadOpts []func(*config.LoadOptions) error
	if r.s3Opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(r.s3Opts.Region))
	}
	if r.s3Opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(r.s3Opts.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}
	r.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = r.s3Opts.UsePathStyle
		if r.s3Opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(r.s3Opts.Endpoint)
		}
	})
	return r.s3, nil
}

func (r *Resolver) fetchS3(ctx context.Context, u *url.URL, scratchDir string) (string, error) {
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", fmt.Errorf("source %s: want s3://bucket/key", u)
	}
	c, err := r.s3Client(ctx)
	if err != nil {
		return "", err
	}
	out, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		status := s3Status(err)
		if status == http.StatusNotFound {
			return "", fmt.Errorf("source %s: %w: %w", u, err, ErrNotFound)
		}
		return "", markTransient(fmt.Errorf("source %s: %w", u, err), status, err)
	}
	defer out.Body.Close()

	dst := localName(scratchDir, key)
	if err := save(dst, out.Body); err != nil {
		return "", markTransient(fmt.Errorf("source %s: download: %w", u, err), 0, err)
	}
	return dst, nil
}

func s3Status(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// markTransient flags retryable failures: retryable HTTP statuses, or network
// timeouts when no status was received.
func markTransient(err error, status int, cause error) error {
	if retry.TransientStatus(status) {
		return retry.Transient(err)
	}
	if status == 0 && cause != nil && retry.IsTransient(cause) {
		return retry.Transient(err)
	}
	return err
}
