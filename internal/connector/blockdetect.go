package connector

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-automation response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockChallenge  BlockType = "challenge"
	BlockLoginWall  BlockType = "login_wall"
)

// challengePaths are redirect targets that mean the session was dropped.
var challengePaths = []string{
	"/authwall",
	"/uas/login",
	"/login",
}

// DetectBlock checks a response for signs of anti-bot protection. A detected
// block is never worked around; the caller fails the session instead.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-mitigated") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	if resp.Request != nil && resp.Request.URL != nil {
		path := resp.Request.URL.Path
		if strings.HasPrefix(path, "/checkpoint/challenge") {
			return true, BlockChallenge
		}
		for _, p := range challengePaths {
			if strings.HasPrefix(path, p) {
				return true, BlockLoginWall
			}
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "captcha-internal") ||
		strings.Contains(lower, "arkose") {
		return true, BlockCaptcha
	}

	if strings.Contains(lower, "let's do a quick security check") ||
		strings.Contains(lower, "verify you are human") {
		return true, BlockChallenge
	}

	return false, BlockNone
}
