package rsyncdelta

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSig(t *testing.T, base string, chunkSize uint64) *Signature {
	t.Helper()

	sig, err := BuildSignature(strings.NewReader(base), chunkSize)
	require.NoError(t, err)

	return sig
}

func TestComputeDelta_Unchanged(t *testing.T) {
	t.Parallel()

	base := "ABCDEFGHIJ"
	sig := buildSig(t, base, 5)

	instructions := ComputeDelta(sig, []byte(base))

	var out bytes.Buffer
	require.NoError(t, ApplyDelta(strings.NewReader(base), instructions, &out))
	assert.Equal(t, base, out.String())

	for _, instr := range instructions {
		assert.Equal(t, KindCopy, instr.Kind)
	}
}

func TestComputeDelta_OneChunkChanged(t *testing.T) {
	t.Parallel()

	base := "ABCDEFGHIJ"
	sig := buildSig(t, base, 5)

	modified := "ABCDXFGHIJ"
	instructions := ComputeDelta(sig, []byte(modified))

	var out bytes.Buffer
	require.NoError(t, ApplyDelta(strings.NewReader(base), instructions, &out))
	assert.Equal(t, modified, out.String())
}

func TestComputeDelta_Appended(t *testing.T) {
	t.Parallel()

	base := "ABCDEFGHIJ"
	sig := buildSig(t, base, 5)

	appended := base + "KLMNO"
	instructions := ComputeDelta(sig, []byte(appended))

	var out bytes.Buffer
	require.NoError(t, ApplyDelta(strings.NewReader(base), instructions, &out))
	assert.Equal(t, appended, out.String())
}

func TestComputeDelta_EntirelyNew(t *testing.T) {
	t.Parallel()

	base := "ABCDEFGHIJ"
	sig := buildSig(t, base, 5)

	replaced := "ZZZZZZZZZZ"
	instructions := ComputeDelta(sig, []byte(replaced))

	var out bytes.Buffer
	require.NoError(t, ApplyDelta(strings.NewReader(base), instructions, &out))
	assert.Equal(t, replaced, out.String())
}

func TestComputeDelta_EmptyNewData(t *testing.T) {
	t.Parallel()

	sig := buildSig(t, "ABCDEFGHIJ", 5)
	instructions := ComputeDelta(sig, nil)
	assert.Empty(t, instructions)
}

func TestComputeDelta_NilSignature(t *testing.T) {
	t.Parallel()

	instructions := ComputeDelta(nil, []byte("hello"))
	require.Len(t, instructions, 1)
	assert.Equal(t, KindLiteral, instructions[0].Kind)
}
