package models

// Client is a registered machine client.
type Client struct {
	ID        string
	Secret    string
	Audiences []string
}
