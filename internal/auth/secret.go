package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// Secret はパスワードやハッシュなど、ログや文字列化に出してはいけない値を保持します。
// fmt・slog・encoding/json のいずれで出力しても中身は表示されません。
type Secret struct {
	value string
}

// NewSecret は s を Secret で包みます。
func NewSecret(s string) Secret {
	return Secret{value: s}
}

// Expose は保持している生の値を返します。検証処理以外では呼ばないでください。
func (s Secret) Expose() string {
	return s.value
}

// IsEmpty は値が空かどうかを返します。
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "auth.Secret{" + redacted + "}"
}

// Format は %v, %+v, %#v, %s, %q いずれでも伏字を出力します。
func (s Secret) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('#') {
			_, _ = fmt.Fprint(f, s.GoString())
			return
		}
		_, _ = fmt.Fprint(f, redacted)
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", redacted)
	default:
		_, _ = fmt.Fprint(f, redacted)
	}
}

// LogValue は slog 出力時に伏字へ置き換えます。
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// UnmarshalJSON はリクエストボディからの読み込みにのみ使います。
func (s *Secret) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.value = raw
	return nil
}
