package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// S3Backend reads ranges of one object from any S3 compatible store.
//
//	s3://[access:secret@]endpoint/bucket/key[?ssl=false&region=...]
//	s3:bucket/key   (endpoint from BITA_S3_ENDPOINT, credentials from the environment)
type S3Backend struct {
	client     *minio.Client
	bucketName string
	objectName string
	endpoint   string

	sizeOnce sync.Once
	size     int64
	sizeErr  error
}

func NewS3Backend(u *url.URL) (*S3Backend, error) {
	var endpoint, path string
	if u.Opaque != "" {
		endpoint = os.Getenv("BITA_S3_ENDPOINT")
		if endpoint == "" {
			endpoint = defaultS3Endpoint
		}
		path = u.Opaque
	} else {
		endpoint = u.Host
		path = u.Path
	}

	bucket, object, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if bucket == "" {
		return nil, apperrors.New(apperrors.TypeConfig, "S3 URI is missing a bucket", "Use s3://endpoint/bucket/key or s3:bucket/key.")
	}

	var creds *credentials.Credentials
	if u.User != nil {
		secret, _ := u.User.Password()
		creds = credentials.NewStaticV4(u.User.Username(), secret, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
		})
	}

	q := u.Query()
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: q.Get("ssl") != "false",
		Region: q.Get("region"),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "failed to create S3 client", "Check the S3 endpoint.")
	}

	return &S3Backend{
		client:     client,
		bucketName: bucket,
		objectName: object,
		endpoint:   endpoint,
	}, nil
}

func (s *S3Backend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(int64(offset), int64(offset+length-1)); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeInternal, "invalid S3 range", "")
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectName, opts)
	if err != nil {
		return nil, rangeError(s.classify(err), s.Location(), offset, length)
	}
	defer obj.Close()

	buf := make([]byte, length)
	n, err := io.ReadFull(obj, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return nil, shortRead(s.Location(), offset, length, n)
	}
	if err != nil {
		return nil, rangeError(s.classify(err), s.Location(), offset, length)
	}
	return buf, nil
}

func (s *S3Backend) Size(ctx context.Context) (int64, error) {
	s.sizeOnce.Do(func() {
		info, err := s.client.StatObject(ctx, s.bucketName, s.objectName, minio.StatObjectOptions{})
		if err != nil {
			s.sizeErr = s.classify(err)
			return
		}
		s.size = info.Size
	})
	return s.size, s.sizeErr
}

func (s *S3Backend) Put(ctx context.Context, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucketName, s.objectName, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *S3Backend) classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return apperrors.Wrap(err, apperrors.TypeResource, "S3 object not found", "Check the bucket and key in the archive URI.")
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return apperrors.Wrap(err, apperrors.TypeAuth, "S3 access denied", "Check the access key and secret.")
	case "":
		return apperrors.Wrap(err, apperrors.TypeConnection, "S3 request failed", "Check the endpoint and network connectivity.")
	default:
		return apperrors.Wrap(err, apperrors.TypeIO, "S3 request failed", "")
	}
}

func (s *S3Backend) Location() string {
	return "s3://" + s.endpoint + "/" + s.bucketName + "/" + s.objectName
}

func (s *S3Backend) Close() error { return nil }
