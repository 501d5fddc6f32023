package oauth

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mschirtzinger/daysync/internal/cloud"
)

// CallbackPath is the redirect target registered with the providers.
const CallbackPath = "/oauth/callback"

// Scopes requested per provider.
var Scopes = map[cloud.Type][]string{
	cloud.TypeGoogle:   {"https://www.googleapis.com/auth/drive.file"},
	cloud.TypeOneDrive: {"Files.ReadWrite.AppFolder", "User.Read"},
}

// Config returns the client config of provider for the given redirect URL.
func Config(provider cloud.Type, clientID, redirectURL string) (*oauth2.Config, error) {
	var endpoint oauth2.Endpoint
	switch provider {
	case cloud.TypeGoogle:
		endpoint = endpoints.Google
	case cloud.TypeOneDrive:
		endpoint = endpoints.AzureAD("common")
	default:
		return nil, fmt.Errorf("provider %q does not use oauth", provider)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%s client id is not configured", provider)
	}
	return &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    endpoint,
		RedirectURL: redirectURL,
		Scopes:      Scopes[provider],
	}, nil
}

// AuthURL builds the implicit-grant authorization URL. The token comes
// back in the fragment of the redirect, so no code exchange is needed.
func AuthURL(provider cloud.Type, clientID, redirectURL, state string) (string, error) {
	cfg, err := Config(provider, clientID, redirectURL)
	if err != nil {
		return "", err
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_type", "token")}
	if provider == cloud.TypeGoogle {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}
