package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMessage(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msg.eml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func region(t *testing.T, path string, off, length int64) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.LessOrEqual(t, off+length, int64(len(data)))
	return string(data[off : off+length])
}

const simpleMsg = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.net>\r\n" +
	"Subject: hello\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"Message-Id: <m1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"line one\r\n" +
	"line two\r\n"

func TestOpenSimple(t *testing.T) {
	path := writeMessage(t, simpleMsg)
	m, err := Open(path)
	require.NoError(t, err)

	root := m.Root
	assert.Equal(t, "text/plain", root.MediaType)
	assert.Equal(t, int64(0), root.HeadOffset)
	assert.True(t, strings.HasSuffix(region(t, path, root.HeadOffset, root.HeadLength), "\r\n\r\n"))
	assert.Equal(t, "line one\r\nline two\r\n",
		region(t, path, root.ContentOffset, root.ContentLength))
	assert.Equal(t, int64(2), root.Lines)
	assert.Equal(t, int64(len(simpleMsg)), m.EntireLength())
}

const multiMsg = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.net>\r\n" +
	"Subject: report\r\n" +
	"Content-Type: multipart/mixed; boundary=\"XX\"\r\n" +
	"\r\n" +
	"preamble ignored\r\n" +
	"--XX\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"body text\r\n" +
	"--XX\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"AAAA\r\n" +
	"--XX--\r\n"

func TestOpenMultipart(t *testing.T) {
	path := writeMessage(t, multiMsg)
	m, err := Open(path)
	require.NoError(t, err)

	require.Len(t, m.Root.Children, 2)

	p1, ok := m.Part("1")
	require.True(t, ok)
	assert.Equal(t, "text/plain", p1.MediaType)
	assert.Equal(t, "body text\r\n", region(t, path, p1.ContentOffset, p1.ContentLength))

	p2, ok := m.Part("2")
	require.True(t, ok)
	assert.Equal(t, "application/octet-stream", p2.MediaType)
	assert.Equal(t, "AAAA\r\n", region(t, path, p2.ContentOffset, p2.ContentLength))

	_, ok = m.Part("3")
	assert.False(t, ok)
}

const nestedMsg = "Subject: outer\r\n" +
	"Content-Type: multipart/mixed; boundary=\"AA\"\r\n" +
	"\r\n" +
	"--AA\r\n" +
	"Content-Type: multipart/alternative; boundary=\"BB\"\r\n" +
	"\r\n" +
	"--BB\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"plain\r\n" +
	"--BB\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>html</p>\r\n" +
	"--BB--\r\n" +
	"--AA--\r\n"

func TestOpenNestedMultipart(t *testing.T) {
	path := writeMessage(t, nestedMsg)
	m, err := Open(path)
	require.NoError(t, err)

	p11, ok := m.Part("1.1")
	require.True(t, ok)
	assert.Equal(t, "plain\r\n", region(t, path, p11.ContentOffset, p11.ContentLength))

	p12, ok := m.Part("1.2")
	require.True(t, ok)
	assert.Equal(t, "text/html", p12.MediaType)
	assert.Equal(t, "<p>html</p>\r\n", region(t, path, p12.ContentOffset, p12.ContentLength))
}

const rfc822Msg = "Subject: forwarded\r\n" +
	"Content-Type: multipart/mixed; boundary=\"ZZ\"\r\n" +
	"\r\n" +
	"--ZZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see attached\r\n" +
	"--ZZ\r\n" +
	"Content-Type: message/rfc822\r\n" +
	"\r\n" +
	"Subject: inner\r\n" +
	"From: Carol <carol@example.org>\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"inner body\r\n" +
	"--ZZ--\r\n"

func TestOpenEmbeddedMessage(t *testing.T) {
	path := writeMessage(t, rfc822Msg)
	m, err := Open(path)
	require.NoError(t, err)

	p2, ok := m.Part("2")
	require.True(t, ok)
	require.True(t, p2.IsMessage())
	require.NotNil(t, p2.Embedded)
	assert.Equal(t, "inner", p2.Embedded.Header.Get("Subject"))

	// The embedded message's entire content is addressable by byte
	// range in the outer file.
	content := region(t, path, p2.ContentOffset, p2.ContentLength)
	assert.True(t, strings.HasPrefix(content, "Subject: inner\r\n"))
	assert.True(t, strings.HasSuffix(content, "inner body\r\n"))

	// Its body is part 2.1 per RFC 3501 addressing.
	p21, ok := m.Part("2.1")
	require.True(t, ok)
	assert.Equal(t, "inner body\r\n", region(t, path, p21.ContentOffset, p21.ContentLength))
}

func TestEnvelope(t *testing.T) {
	path := writeMessage(t, simpleMsg)
	m, err := Open(path)
	require.NoError(t, err)

	env := m.Envelope()
	assert.Contains(t, env, `"hello"`)
	assert.Contains(t, env, `("Alice" NIL "alice" "example.com")`)
	assert.Contains(t, env, `("Bob" NIL "bob" "example.net")`)
	assert.Contains(t, env, `"<m1@example.com>"`)
	// Sender and Reply-To fall back to From.
	assert.Equal(t, 3, strings.Count(env, `"alice"`))
}

func TestStructure(t *testing.T) {
	path := writeMessage(t, multiMsg)
	m, err := Open(path)
	require.NoError(t, err)

	body := m.Structure(false)
	assert.True(t, strings.HasPrefix(body, `(("TEXT" "PLAIN"`))
	assert.True(t, strings.HasSuffix(body, `"MIXED")`))
	assert.Contains(t, body, `"BASE64"`)

	bs := m.Structure(true)
	assert.Contains(t, bs, `("BOUNDARY" "XX")`)
}

func TestStructureSimpleTextLines(t *testing.T) {
	path := writeMessage(t, simpleMsg)
	m, err := Open(path)
	require.NoError(t, err)

	body := m.Structure(false)
	assert.Contains(t, body, `("TEXT" "PLAIN" ("CHARSET" "utf-8")`)
	assert.True(t, strings.Contains(body, " 2)"), "line count rendered: %s", body)
}

func TestFilterHeaderFields(t *testing.T) {
	raw := []byte("From: a@example.com\r\nSubject: s\r\nTo: b@example.com\r\n\r\n")

	got := FilterHeaderFields(raw, []string{"subject"}, false)
	assert.Equal(t, "Subject: s\r\n\r\n", string(got))

	got = FilterHeaderFields(raw, []string{"subject"}, true)
	assert.Equal(t, "From: a@example.com\r\nTo: b@example.com\r\n\r\n", string(got))

	got = FilterHeaderFields(raw, []string{"x-missing"}, false)
	assert.Equal(t, "\r\n", string(got))
}
