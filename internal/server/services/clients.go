package services

import (
	"context"
	"crypto/subtle"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/models"
)

const msgClientNotFound = "Client not found."

// ClientCredentialIssuer authenticates machine clients against a static
// registry. Clients get no refresh token.
type ClientCredentialIssuer struct {
	clients []models.Client
	issuer  TokenIssuer
}

func NewClientCredentialIssuer(clients []models.Client, issuer TokenIssuer) *ClientCredentialIssuer {
	return &ClientCredentialIssuer{clients: clients, issuer: issuer}
}

// IssueForClient returns NotFound for an unknown id and for a wrong secret
// alike. Every registered client is compared so the timing does not depend
// on which one matched.
func (c *ClientCredentialIssuer) IssueForClient(_ context.Context, clientID, clientSecret string) (*models.ClientTokenResponse, error) {
	var match *models.Client

	for i := range c.clients {
		cl := &c.clients[i]
		idOK := subtle.ConstantTimeCompare([]byte(cl.ID), []byte(clientID))
		secretOK := subtle.ConstantTimeCompare([]byte(cl.Secret), []byte(clientSecret))
		if idOK&secretOK == 1 && match == nil {
			match = cl
		}
	}

	if match == nil || clientID == "" {
		return nil, common.NotFound(msgClientNotFound)
	}

	return c.issuer.IssueClientToken(match)
}
