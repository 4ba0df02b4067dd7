package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Ошибка подписи токена: %v", err)
	}
	return token
}

func sessionClaims(userID uint64, admin bool, issuer string, expires time.Time) *Claims {
	return &Claims{
		UserID:  userID,
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

// Права редактора и администратора переживают выпуск и проверку токена
func TestJWTRoles(t *testing.T) {
	cases := []struct {
		name string
		user User
	}{
		{"редактор", User{ID: 3, Username: "mapper"}},
		{"администратор", User{ID: 1, Username: "root", IsAdmin: true}},
	}

	for _, tc := range cases {
		token, err := GenerateJWT(&tc.user)
		if err != nil {
			t.Fatalf("%s: ошибка выпуска токена: %v", tc.name, err)
		}

		userID, valid, admin := ValidateJWT(token)
		if !valid || userID != tc.user.ID || admin != tc.user.IsAdmin {
			t.Errorf("%s: получено id=%d valid=%v admin=%v", tc.name, userID, valid, admin)
		}

		claims, err := ParseJWT(token)
		if err != nil {
			t.Fatalf("%s: ParseJWT: %v", tc.name, err)
		}
		if claims.Username != tc.user.Username || claims.Subject != tc.user.Username {
			t.Errorf("%s: неверное имя в claims: %q/%q", tc.name, claims.Username, claims.Subject)
		}
		if claims.Issuer != "autotile" {
			t.Errorf("%s: неверный issuer %q", tc.name, claims.Issuer)
		}
		if ttl := time.Until(claims.ExpiresAt.Time); ttl <= 0 || ttl > TokenTTL {
			t.Errorf("%s: срок жизни вне (0, TokenTTL]: %v", tc.name, ttl)
		}
		if err := ValidateToken(token); err != nil {
			t.Errorf("%s: ValidateToken: %v", tc.name, err)
		}
	}
}

// Редактор не может поднять себе права, переписав payload
func TestJWTTamperedAdminFlag(t *testing.T) {
	token, err := GenerateJWT(&User{ID: 3, Username: "mapper"})
	if err != nil {
		t.Fatalf("Ошибка выпуска токена: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("Ожидалось 3 части токена, получено %d", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("Ошибка декодирования payload: %v", err)
	}
	forged := strings.Replace(string(payload), `"is_admin":false`, `"is_admin":true`, 1)
	if forged == string(payload) {
		t.Fatalf("В payload нет флага администратора: %s", payload)
	}
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	if _, valid, admin := ValidateJWT(strings.Join(parts, ".")); valid || admin {
		t.Errorf("Подделанный токен принят: valid=%v admin=%v", valid, admin)
	}
}

func TestJWTRejected(t *testing.T) {
	future := time.Now().Add(time.Hour)
	cases := map[string]string{}
	cases["пустой"] = ""
	cases["мусор"] = "not.a.jwt"
	cases["чужой issuer"] = signClaims(t, jwt.SigningMethodHS256, jwtSecret, sessionClaims(1, true, "billing", future))
	cases["истёкший"] = signClaims(t, jwt.SigningMethodHS256, jwtSecret, sessionClaims(1, true, "autotile", time.Now().Add(-time.Minute)))
	cases["без подписи"] = signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, sessionClaims(1, true, "autotile", future))
	cases["другой ключ"] = signClaims(t, jwt.SigningMethodHS256, []byte(strings.Repeat("k", 32)), sessionClaims(1, true, "autotile", future))

	for name, token := range cases {
		userID, valid, admin := ValidateJWT(token)
		if valid || admin || userID != 0 {
			t.Errorf("%s: токен принят (id=%d admin=%v)", name, userID, admin)
		}
		if err := ValidateToken(token); err == nil {
			t.Errorf("%s: ValidateToken должен вернуть ошибку", name)
		}
	}
}

// Смена секрета отзывает ранее выданные токены
func TestSetJWTSecretRevokesTokens(t *testing.T) {
	token, err := GenerateJWT(&User{ID: 9, Username: "mapper"})
	if err != nil {
		t.Fatalf("Ошибка выпуска токена: %v", err)
	}

	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("GenerateSecureSecret: %v", err)
	}
	if raw, _ := base64.StdEncoding.DecodeString(secret); len(raw) != 32 {
		t.Errorf("Ожидался секрет из 32 байт, получено %d", len(raw))
	}
	if other, _ := GenerateSecureSecret(); other == secret {
		t.Error("Два секрета подряд совпали")
	}

	if err := SetJWTSecret(secret); err != nil {
		t.Fatalf("SetJWTSecret: %v", err)
	}
	if err := ValidateToken(token); err == nil {
		t.Error("Токен со старым секретом прошёл проверку")
	}

	fresh, _ := GenerateJWT(&User{ID: 9, Username: "mapper"})
	if err := ValidateToken(fresh); err != nil {
		t.Errorf("Токен с новым секретом отклонён: %v", err)
	}
}

func TestSetJWTSecretValidation(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("sixteen-bytes-ok"))
	for _, secret := range []string{"", "не base64 @#$", short} {
		if err := SetJWTSecret(secret); err == nil {
			t.Errorf("Секрет %q должен быть отклонён", secret)
		}
	}
}
