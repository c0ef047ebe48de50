package collab

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/knmi/sdsrules/pkg/errs"
	"github.com/knmi/sdsrules/pkg/sds"
)

// S3ObjectStore is an ObjectStore backed by any S3-compatible endpoint
// (AWS S3, MinIO, Hetzner Cloud Storage), adapted from the teacher module's
// storage/s3aws.go upload helpers and narrowed to the single-object
// operations the rule engine's ingest/purge actions need.
type S3ObjectStore struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	keyPrefix  string
}

// S3Options configures NewS3ObjectStore.
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	KeyPrefix       string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3ObjectStore builds an S3ObjectStore from explicit credentials, as the
// archive's object_store.* configuration block supplies them, rather than
// relying on ambient AWS profile discovery.
func NewS3ObjectStore(ctx context.Context, opts S3Options) (*S3ObjectStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     opts.AccessKeyID,
					SecretAccessKey: opts.SecretAccessKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", errs.ErrIoError, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3ObjectStore{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     opts.Bucket,
		keyPrefix:  opts.KeyPrefix,
	}, nil
}

func (s *S3ObjectStore) key(d sds.Descriptor) string {
	return d.ObjectKey(s.keyPrefix)
}

// Exists reports whether the object is present in the bucket.
func (s *S3ObjectStore) Exists(ctx context.Context, d sds.Descriptor) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: head object %s: %v", errs.ErrIoError, s.key(d), err)
}

// Checksum returns the checksum stored in the object's metadata (written
// alongside the object by Put), not the S3 ETag, since multipart ETags are
// not plain MD5 digests. An object without that metadata yields "".
func (s *S3ObjectStore) Checksum(ctx context.Context, d sds.Descriptor) (string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: head object %s: %v", errs.ErrIoError, s.key(d), err)
	}
	if out.Metadata != nil {
		if sum, ok := out.Metadata["checksum"]; ok {
			return sum, nil
		}
	}
	return "", nil
}

// Put uploads the descriptor's local file, attaching checksum as object
// metadata for later retrieval by Checksum.
func (s *S3ObjectStore) Put(ctx context.Context, d sds.Descriptor, checksum string) error {
	f, err := os.Open(d.FilePath())
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errs.ErrIoError, d.FilePath(), err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(d)),
		Body:     f,
		Metadata: map[string]string{"checksum": checksum},
	})
	if err != nil {
		return fmt.Errorf("%w: put object %s: %v", errs.ErrIoError, s.key(d), err)
	}
	return nil
}

// Delete removes the object from the bucket. Deleting an absent object is
// not an error, matching S3 DeleteObject semantics.
func (s *S3ObjectStore) Delete(ctx context.Context, d sds.Descriptor) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete object %s: %v", errs.ErrIoError, s.key(d), err)
	}
	return nil
}

// Get downloads the object to localPath.
func (s *S3ObjectStore) Get(ctx context.Context, d sds.Descriptor, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errs.ErrIoError, localPath, err)
	}
	defer f.Close()

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(d)),
	})
	if err != nil {
		return fmt.Errorf("%w: get object %s: %v", errs.ErrIoError, s.key(d), err)
	}
	return nil
}
