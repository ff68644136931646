package whatsapp

import (
	"time"

	"github.com/tidwall/gjson"
)

const (
	firstMessagePath  = "entry.0.changes.0.value.messages.0"
	phoneNumberIDPath = "entry.0.changes.0.value.metadata.phone_number_id"
)

// Normalize extracts the sender and text of the first message in a webhook
// payload. Any missing, empty or non-string field along the path yields
// false; the function never fails on malformed input.
func Normalize(body []byte) (InboundMessage, bool) {
	if !gjson.ValidBytes(body) {
		return InboundMessage{}, false
	}

	msg := gjson.GetBytes(body, firstMessagePath)
	if !msg.IsObject() {
		return InboundMessage{}, false
	}

	from := msg.Get("from")
	text := msg.Get("text.body")
	if from.Type != gjson.String || from.Str == "" {
		return InboundMessage{}, false
	}
	if text.Type != gjson.String || text.Str == "" {
		return InboundMessage{}, false
	}

	parsed := InboundMessage{
		From:          from.Str,
		Text:          text.Str,
		MessageID:     msg.Get("id").String(),
		Type:          msg.Get("type").String(),
		PhoneNumberID: gjson.GetBytes(body, phoneNumberIDPath).String(),
	}
	if sec := msg.Get("timestamp").Int(); sec > 0 {
		parsed.Timestamp = time.Unix(sec, 0).UTC()
	}
	return parsed, true
}
