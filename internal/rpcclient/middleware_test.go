package rpcclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRetryAfter_Integer(t *testing.T) {
	assert.Equal(t, 68*time.Second, parseRetryAfter("68"))
}

func TestParseRetryAfter_Invalid(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter("invalid date"))
}

func TestParseRetryAfter_Negative(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5"))
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	// a date in the past yields now - target, not target - now: a
	// stale Retry-After header is treated as "already waited this long",
	// matching _parse_retry_after's max(0, time.time() - time.mktime(t)).
	target := time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC)
	want := time.Since(target)
	got := parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT")

	assert.Greater(t, got, time.Duration(0))
	assert.InDelta(t, want.Seconds(), got.Seconds(), 5)
}

func TestParseRetryAfter_HTTPDate_Future_ClampsToZero(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(future))
}
