package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIKeyHashRoundTrip(t *testing.T) {
	hash, err := HashAPIKey("s3cret-ops-key")
	require.NoError(t, err)

	require.NoError(t, CompareAPIKey(string(hash), "s3cret-ops-key"))
	require.Error(t, CompareAPIKey(string(hash), "wrong-key"))
}
