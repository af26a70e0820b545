package canonicalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestJCSDeterministic(t *testing.T) {
	v := map[string]interface{}{"x": []int{1, 2, 3}, "y": "text", "z": map[string]int{"k": 9}}
	a, err := JCS(v)
	require.NoError(t, err)
	b, err := JCS(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]string{"cmd": "a<b>&c"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "a<b>&c")
}

func TestJCSRespectsStructTags(t *testing.T) {
	type rec struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	out, err := JCS(rec{RunID: "r1", Status: "ok"})
	require.NoError(t, err)
	assert.Equal(t, `{"run_id":"r1","status":"ok"}`, string(out))
}

func TestCanonicalHashStable(t *testing.T) {
	h1, err := CanonicalHash(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, "sha256:"))
}

func TestHashBytesPrefix(t *testing.T) {
	h := HashBytes([]byte("payload"))
	assert.True(t, strings.HasPrefix(h, "sha256:"))
	assert.Len(t, h, len("sha256:")+64)
}
