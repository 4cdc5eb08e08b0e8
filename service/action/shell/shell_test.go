package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_IsLocal(t *testing.T) {
	testCases := []struct {
		URL    string
		expect bool
	}{
		{URL: "", expect: true},
		{URL: LocalURL, expect: true},
		{URL: "ssh://127.0.0.1:22/", expect: true},
		{URL: "ssh://build.example.com/", expect: false},
	}
	for _, testCase := range testCases {
		t.Run(testCase.URL, func(t *testing.T) {
			host := &Host{URL: testCase.URL}
			assert.Equal(t, testCase.expect, host.IsLocal())
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'a b'`, Quote("a b"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestSessionKey(t *testing.T) {
	host := &Host{URL: LocalURL}
	assert.Equal(t, sessionKey(host, map[string]string{"A": "1", "B": "2"}), sessionKey(host, map[string]string{"B": "2", "A": "1"}))
	assert.NotEqual(t, sessionKey(host, nil), sessionKey(host, map[string]string{"A": "1"}))
}

func TestSessions_RemoteWithoutResolver(t *testing.T) {
	sessions := New(nil)
	_, err := sessions.Run(context.Background(), &Request{Host: &Host{URL: "ssh://build.example.com/"}, Command: "ls"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh credentials resolver not configured")
}
