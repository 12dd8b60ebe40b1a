package resp

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleTypes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"simple string", "+OK\r\n", SimpleString("OK")},
		{"error", "-ERR bad\r\n", Error("ERR bad")},
		{"integer", ":1000\r\n", Integer(1000)},
		{"negative integer", ":-5\r\n", Integer(-5)},
		{"null bulk", "$-1\r\n", BulkString(nil)},
		{"null array", "*-1\r\n", ArrayValue(nil)},
		{"resp3 null", "_\r\n", Null()},
		{"boolean true", "#t\r\n", Boolean(true)},
		{"boolean false", "#f\r\n", Boolean(false)},
		{"big number", "(3492890328409238509324850943850943825024385\r\n",
			BigNumber("3492890328409238509324850943850943825024385")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, n, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, len(tt.in), n)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseBulkString(t *testing.T) {
	v, n, err := Parse([]byte("$5\r\nhello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	b, ok := v.AsBytes()
	require.True(t, ok)
	assert.Equal(t, "hello", string(b))
}

func TestParseBinarySafeBulkString(t *testing.T) {
	payload := []byte("a\r\nb\x00c")
	in := append([]byte("$7\r\n"), payload...)
	in = append(in, '\r', '\n')
	v, n, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	b, _ := v.AsBytes()
	assert.Equal(t, payload, b)
}

func TestParseArray(t *testing.T) {
	in := "*2\r\n$3\r\nfoo\r\n:42\r\n"
	v, n, err := Parse([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	require.Len(t, v.Array, 2)
	s, _ := v.Array[0].AsStr()
	assert.Equal(t, "foo", s)
	i, _ := v.Array[1].AsInt()
	assert.EqualValues(t, 42, i)
}

func TestParseMapSetPush(t *testing.T) {
	v, n, err := Parse([]byte("%2\r\n+a\r\n:1\r\n+b\r\n:2\r\n"))
	require.NoError(t, err)
	assert.Equal(t, TypeMap, v.Type)
	assert.Equal(t, 4, len(v.Map))
	assert.Equal(t, 20, n)

	v, _, err = Parse([]byte("~2\r\n:1\r\n:2\r\n"))
	require.NoError(t, err)
	assert.Equal(t, TypeSet, v.Type)

	v, _, err = Parse([]byte(">2\r\n+message\r\n+hi\r\n"))
	require.NoError(t, err)
	assert.Equal(t, TypePush, v.Type)
	kind, _ := v.Array[0].AsStr()
	assert.Equal(t, "message", kind)
}

func TestParseAttribute(t *testing.T) {
	in := "|1\r\n+ttl\r\n:100\r\n$3\r\nfoo\r\n"
	v, n, err := Parse([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, TypeAttribute, v.Type)
	assert.NotNil(t, v.Attribute)
	assert.Equal(t, len(in), n)
}

func TestParseVerbatimString(t *testing.T) {
	v, n, err := Parse([]byte("=15\r\ntxt:Some string\r\n"))
	require.NoError(t, err)
	s, ok := v.AsStr()
	require.True(t, ok)
	assert.Equal(t, "Some string", s)
	assert.Equal(t, "txt", v.VerbatimEncoding)
	assert.Equal(t, 22, n)
}

func TestParseIncompleteIsRestartable(t *testing.T) {
	full := []byte("$5\r\nhello\r\n")
	for split := 0; split <= len(full); split++ {
		p1, p2 := full[:split], full[split:]

		_, _, err := Parse(p1)
		if split < len(full) {
			assert.ErrorIs(t, err, ErrIncomplete, "split at %d", split)
		}

		full2 := append(append([]byte(nil), p1...), p2...)
		v, n, err := Parse(full2)
		require.NoError(t, err)
		assert.Equal(t, len(full), n)
		b, _ := v.AsBytes()
		assert.Equal(t, "hello", string(b))
	}
}

func TestFrameLengthAgreesWithParse(t *testing.T) {
	frames := []string{
		"+OK\r\n",
		"-ERR oops\r\n",
		":7\r\n",
		"$5\r\nhello\r\n",
		"*2\r\n$3\r\nfoo\r\n:42\r\n",
		"%1\r\n+a\r\n:1\r\n",
		"_\r\n",
		"#t\r\n",
	}
	for _, f := range frames {
		_, consumed, err := Parse([]byte(f))
		require.NoError(t, err)
		n, err := ScanFrameLength([]byte(f))
		require.NoError(t, err)
		assert.Equal(t, consumed, n, "frame %q", f)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	args := [][]byte{[]byte("SET"), []byte("key"), []byte("hello world\r\n\x00")}
	wire := EncodeCommand(args)
	v, n, err := Parse(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	require.Len(t, v.Array, len(args))
	for i, a := range args {
		b, _ := v.Array[i].AsBytes()
		assert.Equal(t, a, b)
	}
}

func TestIntegerOverflowSafety(t *testing.T) {
	min := strconv.FormatInt(math.MinInt64, 10)
	v, _, err := Parse([]byte(":" + min + "\r\n"))
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.EqualValues(t, math.MinInt64, i)

	overflow := "9223372036854775808" // MaxInt64 + 1
	_, _, err = Parse([]byte(":" + overflow + "\r\n"))
	require.Error(t, err)
}

func TestSETGETScenario(t *testing.T) {
	wireOut := EncodePipeline([][][]byte{
		{[]byte("SET"), []byte("key"), []byte("hello")},
		{[]byte("GET"), []byte("key")},
	})
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nhello\r\n*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n", string(wireOut))

	reply := []byte("+OK\r\n$5\r\nhello\r\n")
	v1, n1, err := Parse(reply)
	require.NoError(t, err)
	s, _ := v1.AsStr()
	assert.Equal(t, "OK", s)

	v2, _, err := Parse(reply[n1:])
	require.NoError(t, err)
	b, _ := v2.AsBytes()
	assert.Equal(t, "hello", string(b))
}

func TestPipelineThreeCommandsScenario(t *testing.T) {
	reply := []byte("+OK\r\n:11\r\n$2\r\n11\r\n")
	off := 0
	var got []Value
	for off < len(reply) {
		v, n, err := Parse(reply[off:])
		require.NoError(t, err)
		got = append(got, v)
		off += n
	}
	require.Len(t, got, 3)
	s, _ := got[0].AsStr()
	assert.Equal(t, "OK", s)
	i, _ := got[1].AsInt()
	assert.EqualValues(t, 11, i)
	b, _ := got[2].AsBytes()
	assert.Equal(t, "11", string(b))
}
