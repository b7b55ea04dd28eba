package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeadersPreserveOrderAndDuplicates(t *testing.T) {
	h := NewHeaders()
	h.Add("Set-Cookie", "a=1")
	h.Add("Content-Type", "text/plain")
	h.Add("Set-Cookie", "b=2")

	require.Equal(t, []string{"a=1", "b=2"}, h.Values("set-cookie"))
	v, ok := h.Get("CONTENT-TYPE")
	require.True(t, ok)
	require.Equal(t, "text/plain", v)

	var seen []string
	h.Each(func(name, value string) { seen = append(seen, name) })
	require.Equal(t, []string{"Set-Cookie", "Content-Type", "Set-Cookie"}, seen)
}

func TestHeadersSetReplacesAllMatches(t *testing.T) {
	h := NewHeaders()
	h.Add("X-Test", "1")
	h.Add("X-Test", "2")
	h.Set("x-test", "3")

	require.Equal(t, []string{"3"}, h.Values("X-Test"))
}

func TestHeadersDel(t *testing.T) {
	h := NewHeaders()
	h.Add("A", "1")
	h.Add("B", "2")
	h.Del("a")
	require.Equal(t, 1, h.Len())
	_, ok := h.Get("A")
	require.False(t, ok)
}
