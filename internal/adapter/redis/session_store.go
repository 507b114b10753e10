package redis

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	sessionIDBytes   = 32
	// bounds the Redis round trip when the request context is already gone
	sessionOpTimeout = 3 * time.Second
	// lifetime in Redis of browser-session cookies (MaxAge 0)
	browserSessionTTL = 24 * time.Hour
)

// SessionStore is a sessions.Store that keeps session values in Redis and
// only a signed session ID in the cookie. Values are gob-encoded, so any
// non-basic type stored in a session must be registered with gob.
type SessionStore struct {
	client  redis.UniversalClient
	codecs  []securecookie.Codec
	encoder securecookie.GobEncoder
	Options *sessions.Options
}

var _ sessions.Store = (*SessionStore)(nil)

// NewSessionStore signs session IDs with keyPairs, following the
// securecookie.CodecsFromPairs convention (hash key, optional block key, ...).
func NewSessionStore(client redis.UniversalClient, keyPairs ...[]byte) *SessionStore {
	return &SessionStore{
		client: client,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:   "/",
			MaxAge: 86400 * 30,
		},
	}
}

// Get returns the session for name, cached per request.
func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session referenced by the request cookie, or returns a new
// empty session when there is none, it fails verification, or it expired.
func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	if err := securecookie.DecodeMulti(name, cookie.Value, &session.ID, s.codecs...); err != nil {
		return session, fmt.Errorf("failed to decode session cookie: %w", err)
	}

	found, err := s.load(r.Context(), session)
	if err != nil {
		return session, err
	}
	session.IsNew = !found
	return session, nil
}

// Save persists the session and writes its cookie. A negative MaxAge
// deletes the session from Redis and expires the cookie; MaxAge 0 writes a
// browser-session cookie.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), sessionOpTimeout)
	defer cancel()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.client.Del(ctx, sessionKeyPrefix+session.ID).Err(); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}

	data, err := s.encoder.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("failed to encode session values: %w", err)
	}
	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if ttl == 0 {
		ttl = browserSessionTTL
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Delete removes the stored values of session id. The cookie is left alone,
// so a caller can issue a new session in the same response.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) load(ctx context.Context, session *sessions.Session) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, sessionOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, sessionKeyPrefix+session.ID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}

	if err := s.encoder.Deserialize(data, &session.Values); err != nil {
		return false, fmt.Errorf("failed to decode session values: %w", err)
	}
	return true, nil
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(b), "="), nil
}
