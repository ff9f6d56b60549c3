package grouping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyStringForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"fetchable", FetchableKey("example.com", 30*time.Second), "example.com-30000"},
		{"fetchable zero delay", FetchableKey("example.com", 0), "example.com-0"},
		{"unknown host", UnknownHostKey(), "_UNKNOWN_HOST_"},
		{"blocked", BlockedKey(), "_BLOCKED_"},
		{"deferred", DeferredKey(), "_DEFERRED_"},
		{"skipped", SkippedKey(), "_SKIPPED_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestOnlyFetchableKeysAreFetchable(t *testing.T) {
	t.Parallel()

	assert.True(t, FetchableKey("example.com", time.Second).IsFetchable())
	for _, k := range []Key{UnknownHostKey(), BlockedKey(), DeferredKey(), SkippedKey()} {
		assert.False(t, k.IsFetchable())
	}
}
