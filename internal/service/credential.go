package service

import (
	"context"
	"errors"
	"time"

	"credserver/internal/model"
	"credserver/internal/storage"
)

// ErrCredentialsNotReady means the worker has not produced a credential document yet.
var ErrCredentialsNotReady = errors.New("credentials have not been generated by the worker yet")

// CredentialStatus describes the current document without exposing any token.
type CredentialStatus struct {
	ExpiryDate  int64  `json:"expiry_date"`
	ExpiryKnown bool   `json:"expiry_known"`
	ExpiresIn   int64  `json:"expires_in"`
	Expired     bool   `json:"expired"`
	TokenType   string `json:"token_type,omitempty"`
	ResourceURL string `json:"resource_url,omitempty"`
}

// CredentialService is the read side used by the HTTP server.
type CredentialService interface {
	// Get returns the current credential document.
	Get(ctx context.Context) (*model.Credentials, error)

	// Status returns expiry metadata relative to now.
	Status(ctx context.Context, now time.Time) (*CredentialStatus, error)

	// Ready reports whether the underlying store can be reached.
	Ready(ctx context.Context) error
}

type credentialService struct {
	store storage.Store
}

// NewCredentialService constructs a new CredentialService.
func NewCredentialService(store storage.Store) CredentialService {
	return &credentialService{store: store}
}

func (s *credentialService) Get(ctx context.Context) (*model.Credentials, error) {
	creds, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCredentialsNotReady
		}
		return nil, err
	}
	return creds, nil
}

func (s *credentialService) Status(ctx context.Context, now time.Time) (*CredentialStatus, error) {
	creds, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	st := &CredentialStatus{
		ExpiryDate:  creds.ExpiryDate,
		TokenType:   creds.TokenType,
		ResourceURL: creds.ResourceURL,
	}
	// expiry_date 0 marks a seeded document that must be refreshed as soon as possible.
	if creds.ExpiryDate == 0 {
		st.Expired = true
		return st, nil
	}
	st.ExpiryKnown = true
	st.ExpiresIn = creds.ExpiryDate - now.Unix()
	st.Expired = st.ExpiresIn <= 0
	return st, nil
}

func (s *credentialService) Ready(ctx context.Context) error {
	_, err := s.store.Exists(ctx)
	return err
}
