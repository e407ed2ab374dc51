//go:build cloudintegration

package s3_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopathways/pkg/provider"
	"github.com/3leaps/gopathways/pkg/provider/s3"
	"github.com/3leaps/gopathways/test/cloudtest"
)

func newProvider(t *testing.T, ctx context.Context, bucket string) *s3.Provider {
	t.Helper()
	p, err := s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Endpoint:        cloudtest.Endpoint,
		Region:          cloudtest.Region,
		AccessKeyID:     cloudtest.TestAccessKeyID,
		SecretAccessKey: cloudtest.TestSecretAccessKey,
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProvider_PutGet_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	p := newProvider(t, ctx, cloudtest.CreateBucket(t, ctx))

	body := `{"@type":"DataFeed"}`
	require.NoError(t, p.PutObject(ctx, "feeds/pathways.json", strings.NewReader(body), int64(len(body)), "application/ld+json"))

	rc, err := p.GetObject(ctx, "feeds/pathways.json")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))

	_, err = p.GetObject(ctx, "feeds/missing.json")
	assert.True(t, provider.IsNotFound(err))
}

func TestProvider_MissingBucket_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()
	p := newProvider(t, ctx, "gopathways-does-not-exist")

	err := p.PutObject(ctx, "pathways.json", strings.NewReader("{}"), 2, "")
	require.Error(t, err)
	assert.True(t, provider.IsNotFound(err))
}
