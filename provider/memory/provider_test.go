package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/input-output-hk/catalyst-forge-libs/treesync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

func TestProvider_UploadDelete(t *testing.T) {
	ctx := context.Background()
	p := New()
	creds := provider.Credentials{}

	require.NoError(t, p.UploadFile(ctx, creds, "a.md", []byte("alpha")))
	require.NoError(t, p.UploadFile(ctx, creds, "a.md", []byte("beta")))

	got, ok := p.File("a.md")
	require.True(t, ok)
	assert.Equal(t, "beta", string(got))
	assert.Equal(t, 2, p.Uploads("a.md"))
	assert.Equal(t, []string{"a.md"}, p.Paths())

	require.NoError(t, p.DeleteFile(ctx, creds, "a.md"))
	require.NoError(t, p.DeleteFile(ctx, creds, "missing.md"), "deleting an absent path succeeds")
	_, ok = p.File("a.md")
	assert.False(t, ok)
	assert.Equal(t, 1, p.Deletes("a.md"))
}

func TestProvider_Marker(t *testing.T) {
	ctx := context.Background()
	p := New()

	has, err := p.HasRemoteMarker(ctx, provider.Credentials{})
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, p.WriteRemoteMarker(ctx, provider.Credentials{}, []byte(`{"v":1}`)))
	has, err = p.HasRemoteMarker(ctx, provider.Credentials{})
	require.NoError(t, err)
	assert.True(t, has)
	assert.JSONEq(t, `{"v":1}`, string(p.Marker()))
}

func TestProvider_Fault(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("HTTP 503")
	p := New(WithFault(func(c Call) error {
		if c.Op == "upload" && c.Attempt < 3 {
			return boom
		}
		return nil
	}))

	assert.ErrorIs(t, p.UploadFile(ctx, provider.Credentials{}, "x", nil), boom)
	assert.ErrorIs(t, p.UploadFile(ctx, provider.Credentials{}, "x", nil), boom)
	assert.NoError(t, p.UploadFile(ctx, provider.Credentials{}, "x", nil))
	assert.Equal(t, 3, p.Attempts("upload", "x"))
	assert.Equal(t, 1, p.Uploads("x"))
}

func TestProvider_ValidateCredentials(t *testing.T) {
	assert.NoError(t, New().ValidateCredentials(provider.Credentials{}))

	p := New(WithRequireCredentials())
	assert.ErrorIs(t, p.ValidateCredentials(provider.Credentials{}), tserrors.ErrMissingCredentials)
	assert.NoError(t, p.ValidateCredentials(provider.Credentials{Token: "t"}))
}

func TestProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().UploadFile(ctx, provider.Credentials{}, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider_MaxConcurrent(t *testing.T) {
	p := New(WithDelay(20 * time.Millisecond))
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.UploadFile(context.Background(), provider.Credentials{}, "f", nil)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, p.MaxConcurrent(), 2)
	assert.LessOrEqual(t, p.MaxConcurrent(), 3)
	assert.Equal(t, 3, p.TotalUploads())
}
