package webhooks

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SupportedObject is the only webhook object this module processes; anything
// else is acknowledged and ignored.
const SupportedObject = "whatsapp_business_account"

const (
	FieldMessages             = "messages"
	FieldTemplateStatusUpdate = "message_template_status_update"
)

// Envelope is the vendor webhook payload: one object with a batch of entries,
// each carrying field-tagged changes.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// MessagesValue is the payload of a "messages" change: inbound contact
// messages and delivery status callbacks arrive through the same field.
type MessagesValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         ChangeMetadata  `json:"metadata"`
	Contacts         []Contact       `json:"contacts"`
	Messages         []Message       `json:"messages"`
	Statuses         []MessageStatus `json:"statuses"`
}

type ChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// Body returns the contact-authored text regardless of message shape:
// plain text, quick-reply button, or interactive reply.
func (m Message) Body() string {
	if m.Text != nil && strings.TrimSpace(m.Text.Body) != "" {
		return strings.TrimSpace(m.Text.Body)
	}
	if m.Button != nil {
		if payload := strings.TrimSpace(m.Button.Payload); payload != "" {
			return payload
		}
		return strings.TrimSpace(m.Button.Text)
	}
	if m.Interactive != nil {
		if m.Interactive.ButtonReply != nil {
			return strings.TrimSpace(m.Interactive.ButtonReply.Title)
		}
		if m.Interactive.ListReply != nil {
			return strings.TrimSpace(m.Interactive.ListReply.Title)
		}
	}
	return ""
}

// SentAt parses the vendor's unix-seconds timestamp, zero time when absent.
func (m Message) SentAt() time.Time {
	unix, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

type MessageStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

func (s MessageStatus) OccurredAt() time.Time {
	unix, err := strconv.ParseInt(strings.TrimSpace(s.Timestamp), 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// TemplateStatusValue is the payload of a template review decision change.
type TemplateStatusValue struct {
	Event                   string `json:"event"`
	MessageTemplateID       int64  `json:"message_template_id"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	Reason                  string `json:"reason"`
}

// ParseEnvelope decodes the raw webhook body. Unknown objects decode fine
// and are handled upstream; a body that is not valid JSON is a bad request.
func ParseEnvelope(body []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, webhookBadInput("webhook body is not valid JSON", nil)
	}
	return envelope, nil
}

func (c Change) MessagesValue() (MessagesValue, error) {
	var value MessagesValue
	if err := json.Unmarshal(c.Value, &value); err != nil {
		return MessagesValue{}, webhookBadInput("messages change value is malformed", nil)
	}
	return value, nil
}

func (c Change) TemplateStatusValue() (TemplateStatusValue, error) {
	var value TemplateStatusValue
	if err := json.Unmarshal(c.Value, &value); err != nil {
		return TemplateStatusValue{}, webhookBadInput("template status change value is malformed", nil)
	}
	return value, nil
}
