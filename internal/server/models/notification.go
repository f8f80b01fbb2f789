package models

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Notification is a message to one recipient: an email address for
// ChannelEmail, a phone number for ChannelPhone.
type Notification struct {
	Channel   string
	Recipient string
	Subject   string
	Body      string
}
