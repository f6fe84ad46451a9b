// Package firebaseauth creates and verifies accounts with Firebase
// Authentication. Accounts are created through the Admin SDK; passwords are
// checked against the Identity Toolkit REST endpoint, which the Admin SDK
// does not expose.
package firebaseauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"accessmap/internal/adapters/observability"
	"accessmap/internal/domain"
)

const DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com"

// admin is the part of *auth.Client the provider needs.
type admin interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
}

type Provider struct {
	admin   admin
	users   domain.UserRepository
	base    string
	apiKey  string
	hc      *http.Client
	nowFunc func() time.Time
}

// NewAdmin builds the Admin SDK auth client. credentialsFile may be empty to
// use application default credentials.
func NewAdmin(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}
	return client, nil
}

// New wires a provider. users receives the users/{uid} profile written at
// sign-up.
func New(a admin, users domain.UserRepository, base, apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("web API key is required")
	}
	if base == "" {
		base = DefaultIdentityToolkitURL
	}
	return &Provider{
		admin:   a,
		users:   users,
		base:    strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 15 * time.Second},
		nowFunc: time.Now,
	}, nil
}

func (p *Provider) CreateAccount(ctx context.Context, email, password, displayName string) (domain.User, error) {
	start := time.Now()
	rec, err := p.admin.CreateUser(ctx, (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName))
	observability.ObserveExternal("firebase_auth", "createUser", statusOf(err), time.Since(start))
	if auth.IsEmailAlreadyExists(err) {
		return domain.User{}, domain.ErrAccountExists
	}
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:          rec.UID,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   p.nowFunc().UTC(),
	}
	if err := p.users.CreateUser(ctx, domain.UserRecord{User: u}); err != nil {
		// an auth account without a profile cannot post reviews; undo it
		if derr := p.admin.DeleteUser(ctx, rec.UID); derr != nil {
			log.Error().Err(derr).Str("uid", rec.UID).Msg("rollback of firebase user failed")
		}
		return domain.User{}, err
	}
	return u, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// credential failures reported by signInWithPassword
var badCredentials = []string{"EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL"}

func (p *Provider) VerifyPassword(ctx context.Context, email, password string) (domain.User, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return domain.User{}, err
	}
	u := fmt.Sprintf("%s/v1/accounts:signInWithPassword?key=%s", p.base, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("firebase_auth", "signInWithPassword", 0, time.Since(start))
		if ctx.Err() != nil {
			return domain.User{}, ctx.Err()
		}
		return domain.User{}, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("firebase_auth", "signInWithPassword", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		if json.Unmarshal(b, &ae) == nil {
			for _, code := range badCredentials {
				// messages may carry a suffix, e.g. "TOO_MANY_ATTEMPTS_TRY_LATER : ..."
				if strings.HasPrefix(ae.Error.Message, code) {
					return domain.User{}, domain.ErrInvalidCredentials
				}
			}
		}
		return domain.User{}, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.User{}, err
	}
	if out.LocalID == "" {
		return domain.User{}, errors.New("signInWithPassword: empty localId")
	}
	return domain.User{ID: out.LocalID, Email: out.Email, DisplayName: out.DisplayName}, nil
}

func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case auth.IsEmailAlreadyExists(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
