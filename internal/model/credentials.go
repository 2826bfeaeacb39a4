package model

import "time"

// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
const DefaultExpiresIn = 3600

// Credentials is the OAuth credential document served to clients as oauth_creds.json.
// ExpiryDate is a Unix timestamp in seconds; zero means the expiry is unknown.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiryDate   int64  `json:"expiry_date"`
	TokenType    string `json:"token_type,omitempty"`
	ResourceURL  string `json:"resource_url,omitempty"`
}

// Expiry returns ExpiryDate as a time, or the zero time when unknown.
func (c Credentials) Expiry() time.Time {
	if c.ExpiryDate == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiryDate, 0)
}

// TokenResponse is the JSON body returned by the OAuth token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}
