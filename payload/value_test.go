package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePreservesMemberOrder(t *testing.T) {
	v, err := Decode(`{"z": 1, "a": "x", "m": [true, null, 2.50]}`)
	require.NoError(t, err)
	require.Equal(t, Object, v.Kind())

	var keys []string
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)

	arr, ok := v.Get("m")
	require.True(t, ok)
	require.Len(t, arr.Items(), 3)
	assert.Equal(t, Bool, arr.Items()[0].Kind())
	assert.Equal(t, Null, arr.Items()[1].Kind())
	assert.Equal(t, "2.50", arr.Items()[2].Text())
}

func TestDecodeDuplicateKeyKeepsFirstPosition(t *testing.T) {
	v, err := Decode(`{"a": 1, "b": 2, "a": 3}`)
	require.NoError(t, err)
	require.Len(t, v.Members(), 2)
	assert.Equal(t, "a", v.Members()[0].Key)
	assert.Equal(t, "3", v.Members()[0].Value.Text())
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	tests := []string{
		`{"a": 1} trailing`,
		`{"a": }`,
		``,
		`{"a": 1`,
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Decode(in)
			assert.Error(t, err)
		})
	}
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	v, err := Decode("{\"a\": \"b\"}\n\n  ")
	require.NoError(t, err)
	assert.True(t, v.Has("a"))
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", NullValue(), false},
		{"false", BoolValue(false), false},
		{"true", BoolValue(true), true},
		{"zero", NumberValue("0"), false},
		{"zero float", NumberValue("0.0"), false},
		{"number", NumberValue("7"), true},
		{"empty string", StringValue(""), false},
		{"string", StringValue("x"), true},
		{"empty array", ArrayValue(), false},
		{"array", ArrayValue(NullValue()), true},
		{"empty object", ObjectValue(), false},
		{"object", ObjectValue(Member{Key: "k", Value: NullValue()}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "abc", StringValue("abc").Text())
	assert.Equal(t, "12", NumberValue("12").Text())
	assert.Equal(t, "true", BoolValue(true).Text())
	assert.Equal(t, "", NullValue().Text())
	assert.Equal(t, "", ArrayValue(StringValue("a")).Text())
}
