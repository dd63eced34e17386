package authorization

import (
	"strings"
	"time"

	"github.com/mojocn/base64Captcha"
)

// Captcha geometry for the registration challenge. Six digits keeps the
// challenge readable at the 240px width the client renders.
const (
	captchaDigits    = 6
	captchaWidth     = 240
	captchaHeight    = 80
	captchaMaxSkew   = 0.6
	captchaDotNoise  = 64
	captchaStoreSize = 2048
)

// CaptchaChallenge is one issued challenge, ready for a JSON response. The
// image is a data: URI so the client can drop it straight into an img tag.
type CaptchaChallenge struct {
	ID          string
	ImageBase64 string
	ExpiresAt   time.Time
	TTL         time.Duration
}

// CaptchaStore issues and verifies registration challenges. Answers are
// single-use; a successful Verify consumes the challenge. A nil store
// disables the check entirely, which registration treats as verified.
type CaptchaStore struct {
	captcha *base64Captcha.Captcha
	ttl     time.Duration
}

// NewCaptchaStore builds a digit-image captcha store whose challenges
// expire after ttl.
func NewCaptchaStore(ttl time.Duration) *CaptchaStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	driver := base64Captcha.NewDriverDigit(captchaHeight, captchaWidth, captchaDigits, captchaMaxSkew, captchaDotNoise)
	store := base64Captcha.NewMemoryStore(captchaStoreSize, ttl)
	return &CaptchaStore{
		captcha: base64Captcha.NewCaptcha(driver, store),
		ttl:     ttl,
	}
}

// Issue generates a challenge. Generation failures yield a zero challenge,
// which the handler serves as-is rather than failing the request.
func (s *CaptchaStore) Issue() CaptchaChallenge {
	if s == nil {
		return CaptchaChallenge{}
	}

	id, image, _, err := s.captcha.Generate()
	if err != nil {
		return CaptchaChallenge{}
	}

	image = strings.TrimSpace(image)
	if image != "" && !strings.HasPrefix(image, "data:") {
		image = "data:image/png;base64," + image
	}

	return CaptchaChallenge{
		ID:          id,
		ImageBase64: image,
		ExpiresAt:   time.Now().Add(s.ttl),
		TTL:         s.ttl,
	}
}

// Verify consumes the challenge when the answer matches. Blank inputs never
// verify; a nil store always does.
func (s *CaptchaStore) Verify(id, answer string) bool {
	if s == nil {
		return true
	}

	id = strings.TrimSpace(id)
	answer = strings.TrimSpace(answer)
	if id == "" || answer == "" {
		return false
	}

	return s.captcha.Verify(id, answer, true)
}
