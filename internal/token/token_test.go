package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEscapeSimple(t *testing.T) {
	b, ok := DecodeEscape('n')
	require.True(t, ok)
	require.Equal(t, byte('\n'), b)

	_, ok = DecodeEscape('q')
	require.False(t, ok)
}

func TestDecodeHexEscape(t *testing.T) {
	b, n, ok := DecodeHexEscape("41rest")
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.Equal(t, byte('A'), b)

	_, _, ok = DecodeHexEscape("g1")
	require.False(t, ok)
}

func TestDecodeUnicodeEscapeEncodesUTF8(t *testing.T) {
	s, n, ok := DecodeUnicodeEscape("00e9zz") // é = 'é'
	require.True(t, ok)
	require.Equal(t, 4, n)
	require.Equal(t, "é", s)
}

func TestDecodeStringBodyHandlesEveryEscapeKind(t *testing.T) {
	out, errPos, ok := DecodeStringBody(`line1\nline2\ttab\\slash\x41\u00e9`)
	require.True(t, ok)
	require.Equal(t, -1, errPos)
	require.Equal(t, "line1\nline2\ttab\\slashAé", out)
}

func TestDecodeStringBodyRejectsInvalidEscape(t *testing.T) {
	_, errPos, ok := DecodeStringBody(`bad\qescape`)
	require.False(t, ok)
	require.Equal(t, 3, errPos)
}

func TestInterpolationStatePushAndCloseMatchesSimpleCase(t *testing.T) {
	var s InterpolationState
	require.False(t, s.Active())

	s.Push() // "${"
	require.True(t, s.Active())

	closesSegment := s.CloseBrace() // matching "}"
	require.True(t, closesSegment)
	require.False(t, s.Active())
}

func TestInterpolationStateTracksNestedPlainBraces(t *testing.T) {
	var s InterpolationState
	s.Push()        // entering "${"
	s.OpenBrace()   // a nested record-literal "{" inside the expression
	closed := s.CloseBrace()
	require.False(t, closed) // this just closes the nested brace, not the interpolation
	require.True(t, s.Active())

	closed = s.CloseBrace() // now the interpolation's own closing "}"
	require.True(t, closed)
	require.False(t, s.Active())
}

func TestInterpolationStateResetInnerDepthForStringMid(t *testing.T) {
	var s InterpolationState
	s.Push()
	s.CloseBrace() // first "${...}" segment closes
	s.Push()       // a second "${" reopens via StringMid
	s.ResetInnerDepth()
	require.True(t, s.Active())
	require.True(t, s.CloseBrace())
	require.False(t, s.Active())
}
