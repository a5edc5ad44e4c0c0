/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config carries the connection parameters for an S3 or
// S3-compatible (MinIO, Ceph RGW) bucket.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Store implements Store against a single bucket/prefix. S3 has no
// native append primitive, so Append falls back to read-modify-write.
type S3Store struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3Store constructs a store bound to cfg. The client is created
// lazily on first use.
func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

func (s *S3Store) ensureOpen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return newErr(IO, "ensure_open", "", err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.opened = true
	return nil
}

func (s *S3Store) key(k string) string {
	pfx := strings.TrimSuffix(s.cfg.Prefix, "/")
	if pfx == "" {
		return k
	}
	return pfx + "/" + k
}

func (s *S3Store) Capabilities() Capabilities {
	return Capabilities{Streamable: true, Multipart: true, Transactional: true}
}

func isNotFoundAPIError(err error) bool {
	var apiErr smithy.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func isPreconditionAPIError(err error) bool {
	var apiErr smithy.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func asAPIError(err error, target *smithy.APIError) bool {
	// Walk the Unwrap chain manually to avoid a second import of
	// "errors" purely for errors.As in this one helper.
	for err != nil {
		if ae, ok := err.(smithy.APIError); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (s *S3Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.key(key))})
	if err != nil {
		if isNotFoundAPIError(err) {
			return nil, newErr(NotFound, "read_all", key, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, timeoutErr("read_all", key)
		}
		return nil, newErr(IO, "read_all", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, newErr(IO, "read_all", key, err)
	}
	return data, nil
}

func (s *S3Store) ReadRange(ctx context.Context, key string, start, end int64, clamp bool) ([]byte, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	rangeHdr := fmt.Sprintf("bytes=%d-%d", start, end-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
		Range:  aws.String(rangeHdr),
	})
	if err != nil {
		if isNotFoundAPIError(err) {
			return nil, newErr(NotFound, "read_range", key, err)
		}
		if !clamp {
			return nil, newErr(IO, "read_range", key, err)
		}
		// Retry unranged when the requested range overruns object size
		// and the caller allows clamping.
		full, ferr := s.ReadAll(ctx, key)
		if ferr != nil {
			return nil, ferr
		}
		if start > int64(len(full)) {
			return nil, newErr(IO, "read_range", key, nil)
		}
		if end > int64(len(full)) {
			end = int64(len(full))
		}
		return full[start:end], nil
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, newErr(IO, "read_range", key, err)
	}
	return data, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, ifNoneMatch, ifMatch string) (Stamp, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return Stamp{}, err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	}
	if ifNoneMatch != "" {
		in.IfNoneMatch = aws.String(ifNoneMatch)
	}
	if ifMatch != "" {
		in.IfMatch = aws.String(ifMatch)
	}
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		if isPreconditionAPIError(err) {
			return Stamp{}, newErr(PreconditionFailed, "put", key, err)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return Stamp{}, timeoutErr("put", key)
		}
		return Stamp{}, newErr(IO, "put", key, err)
	}
	etag := etagOf(data)
	if out.ETag != nil {
		etag = strings.Trim(*out.ETag, "\"")
	}
	return Stamp{ETag: etag, Size: int64(len(data))}, nil
}

func (s *S3Store) Write(ctx context.Context, key string, data []byte) (Stamp, error) {
	return s.put(ctx, key, data, "", "")
}

func (s *S3Store) WriteAtomic(ctx context.Context, key string, data []byte) (Stamp, error) {
	// PutObject already replaces an object's bytes in a single request;
	// S3 never exposes partial object content to a concurrent GetObject.
	return s.put(ctx, key, data, "", "")
}

func (s *S3Store) WriteConditional(ctx context.Context, key string, data []byte, expectedETag string) (Stamp, error) {
	if expectedETag == "" {
		return s.put(ctx, key, data, "*", "")
	}
	return s.put(ctx, key, data, "", expectedETag)
}

func (s *S3Store) Append(ctx context.Context, key string, data []byte) (Stamp, error) {
	cur, err := s.ReadAll(ctx, key)
	if err != nil && !IsKind(err, NotFound) {
		return Stamp{}, err
	}
	combined := append(append([]byte{}, cur...), data...)
	return s.put(ctx, key, combined, "", "")
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.key(key))})
	if err != nil {
		if isNotFoundAPIError(err) {
			return false, nil
		}
		return false, newErr(IO, "exists", key, err)
	}
	return true, nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (ObjectMeta, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return ObjectMeta{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.key(key))})
	if err != nil {
		if isNotFoundAPIError(err) {
			return ObjectMeta{}, newErr(NotFound, "stat", key, err)
		}
		return ObjectMeta{}, newErr(IO, "stat", key, err)
	}
	meta := ObjectMeta{Key: key}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.ETag != nil {
		meta.ETag = strings.Trim(*out.ETag, "\"")
	}
	if out.LastModified != nil {
		meta.ModTime = *out.LastModified
	}
	return meta, nil
}

func (s *S3Store) ListPrefix(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return nil, err
	}
	fullPrefix := s.key(prefix)
	var out []ObjectMeta
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	trimLen := len(s.key(""))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newErr(IO, "list_prefix", prefix, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if trimLen <= len(k) {
				k = k[trimLen:]
			}
			m := ObjectMeta{Key: k}
			if obj.Size != nil {
				m.Size = *obj.Size
			}
			if obj.ETag != nil {
				m.ETag = strings.Trim(*obj.ETag, "\"")
			}
			if obj.LastModified != nil {
				m.ModTime = *obj.LastModified
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(s.key(key))})
	if err != nil {
		return newErr(IO, "delete", key, err)
	}
	return nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := RejectEmptyPrefix(prefix); err != nil {
		return 0, err
	}
	metas, err := s.ListPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range metas {
		if err := s.Delete(ctx, m.Key); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *S3Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	source := s.cfg.Bucket + "/" + s.key(srcKey)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.cfg.Bucket),
		Key:        aws.String(s.key(dstKey)),
		CopySource: aws.String(source),
	})
	if err != nil {
		if isNotFoundAPIError(err) {
			return newErr(NotFound, "copy", srcKey, err)
		}
		return newErr(IO, "copy", srcKey, err)
	}
	return nil
}

func (s *S3Store) Move(ctx context.Context, srcKey, dstKey string) error {
	if err := s.Copy(ctx, srcKey, dstKey); err != nil {
		return err
	}
	return s.Delete(ctx, srcKey)
}

// MakeDirectory is a no-op: S3's flat keyspace has no directory
// objects to materialize, same as the memory backend. RemoveDirectory
// deletes every key under prefix.
func (s *S3Store) MakeDirectory(_ context.Context, _ string) error { return nil }

func (s *S3Store) RemoveDirectory(ctx context.Context, prefix string) error {
	_, err := s.DeletePrefix(ctx, prefix)
	return err
}

var _ Store = (*S3Store)(nil)
