// Package session はサーバー側セッションの保存と、このサービス専用の型付きアクセスを提供します。
package session

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/samber/oops"
)

// DefaultCookieName はセッションIDを運ぶクッキー名です。
const DefaultCookieName = "debt_tracer_session"

// ErrDecode はセッションの値が期待した型として読めないときに返ります。
// 「値がない」とは区別し、内部エラーとして扱います。
var ErrDecode = errors.New("session: malformed session value")

var _ sessions.Store = (*Store)(nil)

// Store はクッキーには署名付きのセッションIDだけを載せ、中身は Backend に保存します。
// gin-contrib/sessions の Store (gorilla/sessions.Store) を満たします。
type Store struct {
	backend Backend
	codecs  []securecookie.Codec
	options *gsessions.Options
	ttl     time.Duration
}

// NewStore は Store を作成します。keyPairs は securecookie の hash/block キーの組です。
func NewStore(backend Backend, ttl time.Duration, keyPairs ...[]byte) *Store {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(int(ttl.Seconds()))
		}
	}
	return &Store{
		backend: backend,
		codecs:  codecs,
		options: &gsessions.Options{
			Path:     "/",
			MaxAge:   int(ttl.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		},
		ttl: ttl,
	}
}

// Options はクッキー属性を設定します。
func (s *Store) Options(options sessions.Options) {
	s.options = options.ToGorillaOptions()
}

// Get はリクエストのセッションを読み込みます。New と同じです。
func (s *Store) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return s.New(r, name)
}

// New はクッキーが有効ならバックエンドから中身を読み込み、そうでなければ匿名セッションを返します。
// 改ざん・期限切れのクッキーは匿名扱いとし、バックエンドの I/O エラーのみを返します。
func (s *Store) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	cookie, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, cookie.Value, &id, s.codecs...); err != nil {
		return session, nil
	}

	values, err := s.backend.Load(r.Context(), id)
	if err != nil {
		return session, err
	}
	if values == nil {
		return session, nil
	}

	session.ID = id
	for k, v := range values {
		session.Values[k] = v
	}
	session.IsNew = false
	return session, nil
}

// Save はセッションを保存し、クッキーを書き出します。MaxAge < 0 の場合は削除します。
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	if session.Options != nil && session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		session.ID = id
	}

	values, err := encodeValues(session.Values)
	if err != nil {
		return err
	}
	if err := s.backend.Save(r.Context(), session.ID, values, s.ttl); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return oops.Code("SESSION_COOKIE_ENCODE_FAILED").Wrap(err)
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Renew はセッションIDを新しく発行します。中身は引き継ぎ、古いIDのデータは削除します。
func (s *Store) Renew(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	oldID := session.ID
	session.ID = ""
	if err := s.Save(r, w, session); err != nil {
		return err
	}
	if oldID != "" {
		if err := s.backend.Delete(r.Context(), oldID); err != nil {
			return err
		}
	}
	return nil
}

// Destroy はセッションを削除し、クッキーを失効させます。
func (s *Store) Destroy(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	opts := *session.Options
	opts.MaxAge = -1
	session.Options = &opts
	if err := s.Save(r, w, session); err != nil {
		return err
	}

	session.ID = ""
	session.IsNew = true
	for k := range session.Values {
		delete(session.Values, k)
	}
	restored := *s.options
	session.Options = &restored
	return nil
}

func encodeValues(values map[interface{}]interface{}) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("session key must be a string, got %T", k)
		}
		out[key] = v
	}
	return out, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SESSION_ID_GENERATE_FAILED").Wrap(err)
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(buf), "="), nil
}
