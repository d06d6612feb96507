package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func TestHTMLToText(t *testing.T) {
	html := `<html><head><title>x</title><style>.a{color:red}</style></head>
<body><table><tr><td>Item</td><td>AirPods Pro</td></tr><tr><td>Total</td><td>$249.00</td></tr></table>
<script>track()</script><p>Return by&nbsp;Jan 5</p></body></html>`

	text := HTMLToText(html)

	assert.Equal(t, "Item AirPods Pro Total $249.00 Return by Jan 5", text)
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "color:red")
}

func TestConvertGmailMessagePrefersHTMLPart(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	msg := &gmail.Message{
		Id:           "msg-1",
		InternalDate: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Store <orders@store.example>"},
				{Name: "subject", Value: "Your order receipt"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain body")}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>Order <b>#42</b></p>")}},
			},
		},
	}

	got := convertGmailMessage(msg)

	require.NotNil(t, got)
	assert.Equal(t, "msg-1", got.ID)
	assert.Equal(t, "Your order receipt", got.Subject)
	assert.Equal(t, "Store <orders@store.example>", got.From)
	assert.Equal(t, "Order #42", got.Body)
	assert.True(t, got.ReceivedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestDecodeBodyAcceptsPaddedAndRaw(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("hi"))
	raw := base64.RawURLEncoding.EncodeToString([]byte("hi"))

	for _, in := range []string{padded, raw} {
		out, err := decodeBody(in)
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	}
}

func TestOldestFirst(t *testing.T) {
	newestFirst := []string{"m5", "m4", "m3", "m2", "m1"}

	assert.Equal(t, []string{"m1", "m2"}, oldestFirst(newestFirst, 2))
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, oldestFirst(newestFirst, 50))
	assert.Empty(t, oldestFirst(nil, 10))
}
