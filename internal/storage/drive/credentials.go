package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// authorizedUser is the authorized-user token file written by Google's client
// libraries after the consent flow.
type authorizedUser struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Expiry       string `json:"expiry"`
}

// LoadTokenSource reads an authorized-user token file and returns a token source
// that refreshes the access token when it expires and writes the refreshed token
// back to path. Token is safe for concurrent use; refreshes are serialized.
//
// ctx is used for refresh requests and must outlive the returned source.
func LoadTokenSource(ctx context.Context, path string, scopes ...string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive token file: %w", err)
	}
	var u authorizedUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to parse drive token file %s: %w", path, err)
	}
	if u.RefreshToken == "" && u.Token == "" {
		return nil, fmt.Errorf("drive token file %s has neither token nor refresh_token", path)
	}

	tok := &oauth2.Token{AccessToken: u.Token, RefreshToken: u.RefreshToken, TokenType: "Bearer"}
	if u.Expiry != "" {
		if tok.Expiry, err = time.Parse(time.RFC3339Nano, u.Expiry); err != nil {
			return nil, fmt.Errorf("invalid expiry in drive token file %s: %w", path, err)
		}
	}

	tokenURI := u.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}
	conf := &oauth2.Config{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI},
		Scopes:       scopes,
	}

	return &persistingSource{
		path: path,
		src:  conf.TokenSource(ctx, tok),
		last: tok.AccessToken,
	}, nil
}

// persistingSource writes every newly issued access token back to the token file.
type persistingSource struct {
	mu   sync.Mutex
	path string
	src  oauth2.TokenSource
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		if err := s.persist(tok); err != nil {
			// The refreshed token is still usable for this process.
			slog.Warn("failed to persist refreshed drive token", "path", s.path, "error", err)
		} else {
			slog.Info("drive token refreshed", "expiry", tok.Expiry)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// persist rewrites the token fields of the file, keeping any other fields, via a
// temp file and rename in the same directory.
func (s *persistingSource) persist(tok *oauth2.Token) error {
	fields := map[string]any{}
	if raw, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(raw, &fields)
	}
	fields["token"] = tok.AccessToken
	if tok.RefreshToken != "" {
		fields["refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		fields["expiry"] = tok.Expiry.UTC().Format(time.RFC3339Nano)
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
