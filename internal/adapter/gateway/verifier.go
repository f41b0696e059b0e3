package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// HMACVerifier проверяет подпись webhook по схеме HMAC-SHA256 с общим секретом шлюза.
// Сравнение дайджестов — constant-time (hmac.Equal), чтобы исключить timing-атаки.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier создаёт верификатор с per-gateway секретом.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// VerifySignature сверяет hex-подпись из заголовка с HMAC-SHA256 от payload.
// Принимает подпись как с префиксом "sha256=", так и без него.
func (v *HMACVerifier) VerifySignature(payload []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign считает подпись payload; используется тестами и утилитами повторной доставки.
func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// MockVerifier — заглушка для тестов: принимает или отклоняет любую подпись.
type MockVerifier struct {
	Accept bool
	Calls  int
}

// VerifySignature возвращает настроенный вердикт и считает вызовы.
func (m *MockVerifier) VerifySignature(payload []byte, signature string) bool {
	m.Calls++
	return m.Accept
}

var _ domain.WebhookVerifier = (*HMACVerifier)(nil)
var _ domain.WebhookVerifier = (*MockVerifier)(nil)
