package learn

import (
	"bytes"
	"context"
	"github.com/clambin/home-controller/internal/learning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

func TestCommands(t *testing.T) {
	s, err := learning.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, add(ctx, s, &out, "living", "overcast", "60%"))
	require.NoError(t, add(ctx, s, &out, "living", "overcast", "70"))
	assert.Equal(t, "added sample 1\nadded sample 2\n", out.String())
	assert.Error(t, add(ctx, s, &out, "living", "overcast", "bright"))
	assert.Error(t, add(ctx, s, &out, "", "overcast", "50"))

	out.Reset()
	require.NoError(t, target(ctx, s, &out, "living", "overcast"))
	assert.Equal(t, "living/overcast: 65%\n", out.String())
	assert.ErrorIs(t, target(ctx, s, &out, "kitchen", "overcast"), learning.ErrNoSamples)

	_, err = s.Add(ctx, learning.Sample{Room: "kitchen", Condition: "sunny", Brightness: 40, CreatedAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, list(ctx, s, &out, "", ""))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "kitchen")
	assert.Contains(t, lines[1], "40%")

	out.Reset()
	require.NoError(t, list(ctx, s, &out, "living", ""))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 3)
}
