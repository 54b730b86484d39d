package cloudtest

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func (f *Fake) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "HeadBucket", false); err != nil {
		return nil, err
	}
	if _, ok := f.Buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, apiError("NotFound", "bucket %s not found", aws.ToString(in.Bucket))
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *Fake) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "CreateBucket", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.Bucket)
	if _, ok := f.Buckets[name]; ok {
		return nil, apiError("BucketAlreadyOwnedByYou", "bucket %s already exists", name)
	}
	region := "us-east-1"
	if in.CreateBucketConfiguration != nil && in.CreateBucketConfiguration.LocationConstraint != "" {
		region = string(in.CreateBucketConfiguration.LocationConstraint)
	}
	f.Buckets[name] = &Bucket{Region: region, Objects: make(map[string][]byte)}
	return &s3.CreateBucketOutput{Location: aws.String("/" + name)}, nil
}

func (f *Fake) PutBucketVersioning(ctx context.Context, in *s3.PutBucketVersioningInput, _ ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "PutBucketVersioning", true); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	b.Versioning = in.VersioningConfiguration != nil && in.VersioningConfiguration.Status == s3types.BucketVersioningStatusEnabled
	return &s3.PutBucketVersioningOutput{}, nil
}

func (f *Fake) PutBucketEncryption(ctx context.Context, in *s3.PutBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "PutBucketEncryption", true); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	if cfg := in.ServerSideEncryptionConfiguration; cfg != nil && len(cfg.Rules) > 0 && cfg.Rules[0].ApplyServerSideEncryptionByDefault != nil {
		b.Encryption = string(cfg.Rules[0].ApplyServerSideEncryptionByDefault.SSEAlgorithm)
	}
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (f *Fake) PutBucketTagging(ctx context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "PutBucketTagging", true); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	b.Tags = make(map[string]string)
	if in.Tagging != nil {
		for _, t := range in.Tagging.TagSet {
			b.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *Fake) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "PutObject", true); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	data, err := readAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.Objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *Fake) ListObjectVersions(ctx context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "ListObjectVersions", false); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	out := &s3.ListObjectVersionsOutput{IsTruncated: aws.Bool(false)}
	for _, key := range sortedKeys(b.Objects) {
		out.Versions = append(out.Versions, s3types.ObjectVersion{Key: str(key), VersionId: str("null")})
	}
	return out, nil
}

func (f *Fake) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "DeleteObjects", true); err != nil {
		return nil, err
	}
	b, ok := f.Buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", aws.ToString(in.Bucket))
	}
	out := &s3.DeleteObjectsOutput{}
	if in.Delete != nil {
		for _, obj := range in.Delete.Objects {
			delete(b.Objects, aws.ToString(obj.Key))
			out.Deleted = append(out.Deleted, s3types.DeletedObject{Key: obj.Key, VersionId: obj.VersionId})
		}
	}
	return out, nil
}

func (f *Fake) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("s3", "DeleteBucket", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.Bucket)
	b, ok := f.Buckets[name]
	if !ok {
		return nil, apiError("NoSuchBucket", "bucket %s not found", name)
	}
	if len(b.Objects) > 0 {
		return nil, apiError("BucketNotEmpty", "bucket %s is not empty", name)
	}
	delete(f.Buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}
