package connector

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRandomPacer_DelayWithinBounds(t *testing.T) {
	t.Parallel()
	p := NewRandomPacer(3000, 8000)
	for range 200 {
		d := p.Delay()
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.LessOrEqual(t, d, 8*time.Second)
	}

	fixed := NewRandomPacer(50, 10)
	assert.Equal(t, 50*time.Millisecond, fixed.Delay())
}

func TestRandomPacer_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := NewRandomPacer(5000, 5000).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, NoPacer{}.Wait(context.Background()))
	assert.Error(t, NoPacer{}.Wait(ctx))
}

func respAt(status int, path string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Request:    &http.Request{URL: &url.URL{Path: path}},
	}
}

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *http.Response
		body string
		want BlockType
	}{
		{name: "nil response", resp: nil, want: BlockNone},
		{name: "clean page", resp: respAt(200, "/search/results/content/", nil), body: "<html>posts</html>", want: BlockNone},
		{name: "cloudflare header", resp: respAt(403, "/", http.Header{"Cf-Ray": {"abc"}}), want: BlockCloudflare},
		{name: "cloudflare body", resp: respAt(200, "/", nil), body: "Checking your browser before accessing", want: BlockCloudflare},
		{name: "recaptcha", resp: respAt(200, "/", nil), body: `<div class="g-recaptcha">`, want: BlockCaptcha},
		{name: "challenge redirect", resp: respAt(200, "/checkpoint/challenge/AgF", nil), want: BlockChallenge},
		{name: "security check text", resp: respAt(200, "/", nil), body: "Let's do a quick security check", want: BlockChallenge},
		{name: "authwall", resp: respAt(200, "/authwall", nil), want: BlockLoginWall},
		{name: "login redirect", resp: respAt(200, "/login", nil), want: BlockLoginWall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			blocked, kind := DetectBlock(tt.resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, kind)
		})
	}
}
