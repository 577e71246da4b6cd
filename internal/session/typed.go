package session

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gsessions "github.com/gorilla/sessions"
	"github.com/samber/oops"
)

// このサービスが扱うセッションのキーはこの2つだけです。
const (
	keyUserID   = "user_id"
	keyUsername = "username"
)

const contextKey = "debt-tracer/session"

// Handle はリクエスト単位のセッションへの型付きアクセスです。
// 最初のアクセス時に1度だけバックエンドから読み込みます。
type Handle struct {
	store   *Store
	name    string
	request *http.Request
	writer  http.ResponseWriter

	loaded  bool
	session *gsessions.Session
	loadErr error
}

// NewHandle は Handle を作成します。通常は Sessions ミドルウェア経由で使います。
func NewHandle(store *Store, name string, r *http.Request, w http.ResponseWriter) *Handle {
	return &Handle{store: store, name: name, request: r, writer: w}
}

// Sessions はリクエストごとに Handle を gin.Context に載せるミドルウェアです。
func Sessions(name string, store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKey, NewHandle(store, name, c.Request, c.Writer))
		c.Next()
	}
}

// Default は Sessions ミドルウェアが載せた Handle を返します。
func Default(c *gin.Context) *Handle {
	return c.MustGet(contextKey).(*Handle)
}

func (h *Handle) load() (*gsessions.Session, error) {
	if !h.loaded {
		h.session, h.loadErr = h.store.Get(h.request, h.name)
		h.loaded = true
	}
	if h.loadErr != nil {
		return nil, h.loadErr
	}
	return h.session, nil
}

// ID は現在のセッションIDを返します。未保存の匿名セッションでは空文字です。
func (h *Handle) ID() (string, error) {
	s, err := h.load()
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// UserID は user_id を返します。値がなければ ok=false、壊れていれば ErrDecode を返します。
func (h *Handle) UserID() (uuid.UUID, bool, error) {
	s, err := h.load()
	if err != nil {
		return uuid.Nil, false, err
	}
	raw, present := s.Values[keyUserID]
	if !present {
		return uuid.Nil, false, nil
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil, false, decodeError(keyUserID, fmt.Errorf("unexpected type %T", raw))
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, false, decodeError(keyUserID, err)
	}
	return id, true, nil
}

// Username は username を返します。値がなければ ok=false、壊れていれば ErrDecode を返します。
func (h *Handle) Username() (string, bool, error) {
	s, err := h.load()
	if err != nil {
		return "", false, err
	}
	raw, present := s.Values[keyUsername]
	if !present {
		return "", false, nil
	}
	name, ok := raw.(string)
	if !ok || name == "" {
		return "", false, decodeError(keyUsername, fmt.Errorf("unexpected value %T", raw))
	}
	return name, true, nil
}

// InsertUserID は user_id を書き込み、保存します。
func (h *Handle) InsertUserID(id uuid.UUID) error {
	return h.insert(keyUserID, id.String())
}

// InsertUsername は username を書き込み、保存します。
func (h *Handle) InsertUsername(name string) error {
	return h.insert(keyUsername, name)
}

func (h *Handle) insert(key string, value string) error {
	s, err := h.load()
	if err != nil {
		return err
	}
	s.Values[key] = value
	return h.store.Save(h.request, h.writer, s)
}

// ClearIdentity は user_id と username を取り除きます。保存はしません。
func (h *Handle) ClearIdentity() error {
	s, err := h.load()
	if err != nil {
		return err
	}
	delete(s.Values, keyUserID)
	delete(s.Values, keyUsername)
	return nil
}

// Renew はセッションIDを再発行します。中身はそのまま引き継ぎます。
func (h *Handle) Renew() error {
	s, err := h.load()
	if err != nil {
		return err
	}
	return h.store.Renew(h.request, h.writer, s)
}

// Purge はセッションを破棄します。
func (h *Handle) Purge() error {
	s, err := h.load()
	if err != nil {
		return err
	}
	return h.store.Destroy(h.request, h.writer, s)
}

func decodeError(key string, cause error) error {
	return oops.Code("SESSION_DECODE_FAILED").
		With("key", key).
		Wrap(fmt.Errorf("%w: %w", ErrDecode, cause))
}
