package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gopathways/pkg/programstore"
)

type fakePinger func(context.Context) error

func (f fakePinger) Ping(ctx context.Context) error { return f(ctx) }

func TestStoreHealthChecker(t *testing.T) {
	locked := errors.New("database is locked")

	tests := []struct {
		name    string
		pinger  pinger
		wantErr string
		wantIs  error
	}{
		{name: "reachable", pinger: fakePinger(func(context.Context) error { return nil })},
		{name: "ping failure", pinger: fakePinger(func(context.Context) error { return locked }), wantErr: "program store: database is locked", wantIs: locked},
		{name: "not configured", wantErr: "program store not configured"},
		{
			name: "slow store hits deadline",
			pinger: fakePinger(func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}),
			wantIs: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			err := storeHealthChecker{pinger: tt.pinger}.CheckHealth(ctx)
			if tt.wantErr == "" && tt.wantIs == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestStoreHealthChecker_SQLite(t *testing.T) {
	ctx := context.Background()
	store, err := programstore.Open(ctx, programstore.Config{Path: ":memory:"})
	require.NoError(t, err)

	checker := storeHealthChecker{pinger: store}
	assert.NoError(t, checker.CheckHealth(ctx))

	require.NoError(t, store.Close())
	assert.ErrorContains(t, checker.CheckHealth(ctx), "program store")
}

func TestIdentityHealthChecker(t *testing.T) {
	full := identityHealthChecker{binaryName: "gopathways", envPrefix: "GOPATHWAYS_", configName: "gopathways"}
	assert.NoError(t, full.CheckHealth(context.Background()))
	assert.NoError(t, signalHealthChecker{}.CheckHealth(context.Background()))

	for want, c := range map[string]identityHealthChecker{
		"missing binary name": {envPrefix: "GOPATHWAYS_", configName: "gopathways"},
		"missing env prefix":  {binaryName: "gopathways", configName: "gopathways"},
		"missing config name": {binaryName: "gopathways", envPrefix: "GOPATHWAYS_"},
	} {
		assert.ErrorContains(t, c.CheckHealth(context.Background()), want)
	}
}
