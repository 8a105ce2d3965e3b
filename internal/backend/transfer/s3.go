package transfer

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"golang.org/x/time/rate"
)

// S3API is the slice of the S3 client the adapter needs; narrowed so
// tests can substitute a mock.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Adapter pushes ship-to-shore data into an S3 bucket. It is
// destination-only: enumeration always walks the local warehouse.
type s3Adapter struct {
	def    types.TransferDefinition
	client S3API
}

func (a *s3Adapter) api(ctx context.Context) (S3API, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.def.Region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	a.client = s3.NewFromConfig(cfg)
	return a.client, nil
}

func (a *s3Adapter) Test(ctx context.Context, paths Paths) Report {
	var r Report

	client, err := a.api(ctx)
	if !r.add("Credentials Loaded", err) {
		return r.finish()
	}

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.def.Bucket),
	})
	r.add("Bucket Reachable", err)

	info, err := os.Stat(paths.SourceDir)
	if err == nil && !info.IsDir() {
		err = errors.Errorf("%s is not a directory", paths.SourceDir)
	}
	r.add("Source Directory Exists", err)

	return r.finish()
}

func (a *s3Adapter) Enumerate(ctx context.Context, paths Paths) ([]plan.FileInfo, error) {
	return enumerateLocal(ctx, paths.SourceDir)
}

func (a *s3Adapter) Copy(ctx context.Context, p plan.Plan, started func(proc.Handle)) (Result, error) {
	client, err := a.api(ctx)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if started != nil {
		started(proc.NewCancelHandle(os.Getpid(), cancel))
	}

	limiter := newBandwidthLimiter(a.def.BandwidthLimit)
	keyPrefix := strings.Trim(p.DestDir, "/")

	var res Result
	for _, f := range p.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := a.putFile(ctx, client, p.SourceDir, keyPrefix, f, limiter)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures = append(res.Failures, FileError{Path: f.Path, Err: err.Error()})
			continue
		}
		res.BytesMoved += n
		res.FilesMoved++
	}
	return res, nil
}

func (a *s3Adapter) putFile(ctx context.Context, client S3API, sourceDir, keyPrefix string, f plan.File, limiter *rate.Limiter) (int64, error) {
	src := filepath.Join(sourceDir, filepath.FromSlash(f.Path))
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	// The shore link cap applies to uploads too; spend the whole
	// object's budget up front since the SDK owns the socket.
	if limiter != nil && f.Size > 0 {
		remaining := f.Size
		for remaining > 0 {
			chunk := int64(limiter.Burst())
			if chunk > remaining {
				chunk = remaining
			}
			if err := limiter.WaitN(ctx, int(chunk)); err != nil {
				return 0, err
			}
			remaining -= chunk
		}
	}

	key := path.Join(keyPrefix, f.Path)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.def.Bucket),
		Key:           aws.String(key),
		Body:          in,
		ContentLength: aws.Int64(f.Size),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "uploading %s", f.Path)
	}
	return f.Size, nil
}
