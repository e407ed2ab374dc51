//go:build cloudintegration

package feed_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3leaps/gopathways/pkg/feed"
	"github.com/3leaps/gopathways/test/cloudtest"
)

func TestPublish_S3_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	cloudtest.UseCredentials(t)
	ctx := context.Background()
	bucket := cloudtest.CreateBucket(t, ctx)

	p, err := feed.NewPublisher(ctx, feed.PublishConfig{
		Destination:    "s3://" + bucket + "/feeds/pathways.json",
		Endpoint:       cloudtest.Endpoint,
		Region:         cloudtest.Region,
		ForcePathStyle: true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	f := &feed.DataFeed{
		Context:  "https://schema.org/",
		Type:     "DataFeed",
		Elements: []json.RawMessage{json.RawMessage(`{"@type":"WorkBasedProgram","name":"Welding"}`)},
	}
	res, err := p.Publish(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Programs)

	var got struct {
		Type     string            `json:"@type"`
		Elements []json.RawMessage `json:"dataFeedElement"`
	}
	require.NoError(t, json.Unmarshal(cloudtest.GetObject(t, ctx, bucket, "feeds/pathways.json"), &got))
	assert.Equal(t, "DataFeed", got.Type)
	assert.Len(t, got.Elements, 1)
}
