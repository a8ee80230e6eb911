package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    DefaultBucket,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
	assert.True(t, validConfig().Enabled())
	assert.False(t, Config{}.Enabled())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"scheme", func(c *Config) { c.Endpoint = "http://localhost:9000" }},
		{"endpoint", func(c *Config) { c.Endpoint = " " }},
		{"access key", func(c *Config) { c.AccessKey = "" }},
		{"secret key", func(c *Config) { c.SecretKey = "" }},
		{"region", func(c *Config) { c.Region = "" }},
		{"bucket", func(c *Config) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewPublisherDoesNotDial(t *testing.T) {
	p, err := NewPublisher(validConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultBucket, p.bucket)

	_, err = NewPublisher(Config{})
	assert.Error(t, err)
}

type fakeBucket struct {
	exists  bool
	made    []string
	puts    map[string][]byte
	putErr  error
	headErr error
}

func (f *fakeBucket) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.headErr
}

func (f *fakeBucket) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.exists = true
	return nil
}

func (f *fakeBucket) PutObject(_ context.Context, _ string, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return minio.UploadInfo{Key: key, Size: size}, nil
}

func TestPublishCreatesBucketOnce(t *testing.T) {
	fake := &fakeBucket{}
	p := &Publisher{client: fake, bucket: "b", region: "us-east-1"}

	loc, err := p.Publish(context.Background(), "reports/t/verify-1.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://b/reports/t/verify-1.json", loc)

	_, err = p.Publish(context.Background(), "reports/t/verify-2.json", []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, fake.made)
	assert.Equal(t, []byte(`{"a":1}`), fake.puts["reports/t/verify-1.json"])
}

func TestPublishErrors(t *testing.T) {
	p := &Publisher{client: &fakeBucket{headErr: errors.New("forbidden")}, bucket: "b"}
	_, err := p.Publish(context.Background(), "k", nil)
	assert.ErrorContains(t, err, "forbidden")

	p = &Publisher{client: &fakeBucket{exists: true, putErr: errors.New("slow down")}, bucket: "b"}
	_, err = p.Publish(context.Background(), "k", nil)
	assert.ErrorContains(t, err, "slow down")

	var nilPublisher *Publisher
	_, err = nilPublisher.Publish(context.Background(), "k", nil)
	assert.Error(t, err)
}
