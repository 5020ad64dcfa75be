package store

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionUserIDKey is the session value holding the authenticated user id.
const SessionUserIDKey = "user_id"

// DefaultSessionTTL is the fixed lifetime of a session row and its cookie.
const DefaultSessionTTL = 24 * time.Hour

// ErrSessionUnavailable wraps database failures while loading a session, so
// callers can tell them apart from a forged or expired cookie.
var ErrSessionUnavailable = errors.New("session store unavailable")

// GormSessionStore implements sessions.Store with rows in the session table.
// The cookie carries only the signed session token; values stay server side.
type GormSessionStore struct {
	db      *gorm.DB
	Codecs  []securecookie.Codec
	Options *sessions.Options
	now     func() time.Time
}

// NewGormSessionStore builds a session store sharing db. keyPairs follow the
// securecookie convention: hash key, optional block key, repeated for rotation.
func NewGormSessionStore(db *gorm.DB, ttl time.Duration, keyPairs ...[]byte) *GormSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &GormSessionStore{
		db:     db,
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		now: time.Now,
	}
	s.MaxAge(int(ttl / time.Second))
	return s
}

// MaxAge sets the cookie and row lifetime in seconds.
func (s *GormSessionStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, codec := range s.Codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// SetSecure toggles the Secure cookie attribute.
func (s *GormSessionStore) SetSecure(secure bool) {
	s.Options.Secure = secure
}

// Get returns a session for name, cached per request by the sessions registry.
func (s *GormSessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session referenced by the request cookie, or a fresh one
// when the cookie is missing, forged, or points at an expired row.
func (s *GormSessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var token string
	if err := securecookie.DecodeMulti(name, c.Value, &token, s.Codecs...); err != nil {
		return session, err
	}
	found, err := s.load(r.Context(), name, token, session)
	if err != nil {
		return session, err
	}
	if found {
		session.ID = token
		session.IsNew = false
	}
	return session, nil
}

// Save persists the session row and writes the cookie. A negative MaxAge
// destroys the row and expires the cookie.
func (s *GormSessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.Destroy(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}
	if session.ID == "" {
		token, err := newSessionToken()
		if err != nil {
			return err
		}
		session.ID = token
	}
	if err := s.save(ctx, session); err != nil {
		return err
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Destroy removes a session row by token.
func (s *GormSessionStore) Destroy(ctx context.Context, token string) error {
	if err := s.db.WithContext(ctx).Delete(&SessionModel{}, "token = ?", token).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired prunes rows whose expiry has passed and returns how many were removed.
func (s *GormSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&SessionModel{}, "expires_at <= ?", s.now().UTC())
	return res.RowsAffected, res.Error
}

func (s *GormSessionStore) load(ctx context.Context, name, token string, session *sessions.Session) (bool, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, s.now().UTC()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: load session: %w", ErrSessionUnavailable, err)
	}
	if err := securecookie.DecodeMulti(name, model.Data, &session.Values, s.Codecs...); err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormSessionStore) save(ctx context.Context, session *sessions.Session) error {
	data, err := securecookie.EncodeMulti(session.Name(), session.Values, s.Codecs...)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	now := s.now().UTC()
	model := SessionModel{
		Token:     session.ID,
		UserID:    sessionUserID(session),
		Data:      data,
		ExpiresAt: now.Add(time.Duration(session.Options.MaxAge) * time.Second),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "data", "expires_at", "updated_at"}),
	}).Create(&model).Error
}

func sessionUserID(session *sessions.Session) int64 {
	switch v := session.Values[SessionUserIDKey].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func newSessionToken() (string, error) {
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", errors.New("generate session token")
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(key), "="), nil
}
