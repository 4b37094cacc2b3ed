package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())

	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Jane", Address: "jane@test.rw"}},
			Subject:      "Verify your email address",
			TemplateName: "verification",
			TemplateData: map[string]interface{}{"Name": "Jane", "Code": "123456", "ExpiresIn": "15m0s"},
		},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{
			To:      []mail.Address{{Address: "john@test.rw"}},
			Subject: "plain",
			BodyStr: "hello John",
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextContent, "Your verification code is 123456")
	assert.Contains(t, sent[0].TextContent, "The Communiserver team")
	assert.Contains(t, sent[0].HTMLContent, "123456")
	assert.Equal(t, "hello John", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleServiceMock_unknownTemplate(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: "jane@test.rw"}},
		TemplateName: "nope",
	})
	assert.Empty(t, svc.SentMessages())
}
