package credential

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already normalized", in: "a\nb\n", want: "a\nb\n"},
		{name: "escaped", in: `a\nb\n`, want: "a\nb\n"},
		{name: "escaped crlf", in: `a\r\nb`, want: "a\nb"},
		{name: "raw crlf", in: "a\r\nb", want: "a\nb"},
		{name: "mixed", in: "a\\nb\nc", want: "a\nb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeKey(tt.in))
		})
	}
}

func TestEscapeLineBreaks(t *testing.T) {
	in := "{\n  \"k\": \"line1\nline2\r\nline3\",\n  \"q\": \"say \\\"hi\\\"\nnow\"\n}"
	out := escapeLineBreaks(in)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "line1\nline2\nline3", v["k"])
	assert.Equal(t, "say \"hi\"\nnow", v["q"])
}

func TestParseRequiresIdentity(t *testing.T) {
	_, err := parse([]byte(`{"private_key":"k"}`))
	assert.ErrorContains(t, err, "client_email")

	_, err = parse([]byte(`{"client_email":"a@b.c","private_key":"  "}`))
	assert.ErrorContains(t, err, "private_key")

	_, err = parse([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestCredentialJSONRoundTrip(t *testing.T) {
	cred, err := parse([]byte(keyJSON))
	require.NoError(t, err)
	cred.Type = ""

	data, err := cred.JSON()
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "service_account", back["type"])
	assert.Equal(t, testKey, back["private_key"])
	assert.Empty(t, cred.Type, "JSON must not mutate the credential")
}

func TestCredentialTokenSource(t *testing.T) {
	cred, err := parse([]byte(keyJSON))
	require.NoError(t, err)

	ts, err := cred.TokenSource(context.Background(), CloudPlatformScope)
	require.NoError(t, err)
	assert.NotNil(t, ts)
}

func TestKindByName(t *testing.T) {
	k, ok := KindByName("firebase")
	require.True(t, ok)
	assert.Equal(t, KindFirebase, k)
	assert.Equal(t, "FIREBASE_CREDENTIALS_BASE64", k.Base64Var())
	assert.Equal(t, "FIREBASE_CREDENTIALS_JSON", k.JSONVar())

	_, ok = KindByName("aws")
	assert.False(t, ok)
}
