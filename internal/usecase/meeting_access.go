package usecase

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"

	"go-interview-backend/internal/domain"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

var hotpOpts = hotp.ValidateOpts{Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

// MeetingAccessGenerator derives stable meeting coordinates from the interview id,
// so retries and repairs always produce the same link and passcode.
type MeetingAccessGenerator struct {
	baseURL string
	secret  []byte
}

func NewMeetingAccessGenerator(baseURL string, secret []byte) *MeetingAccessGenerator {
	return &MeetingAccessGenerator{baseURL: strings.TrimRight(baseURL, "/"), secret: secret}
}

func (g *MeetingAccessGenerator) digest(interviewID string) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte("meeting:" + interviewID))
	return mac.Sum(nil)
}

func (g *MeetingAccessGenerator) passcodeSecret(sum []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[8:28])
}

// Generate returns the access details. joinURL from the provider wins over the
// built-in link when present.
func (g *MeetingAccessGenerator) Generate(interviewID, joinURL string) (domain.MeetingAccess, error) {
	sum := g.digest(interviewID)
	meetingID := fmt.Sprintf("%011d", binary.BigEndian.Uint64(sum[:8])%100_000_000_000)

	passcode, err := hotp.GenerateCodeCustom(g.passcodeSecret(sum), 0, hotpOpts)
	if err != nil {
		return domain.MeetingAccess{}, fmt.Errorf("failed to generate passcode: %w", err)
	}

	link := joinURL
	if link == "" {
		link = g.baseURL + "/" + meetingID
	}
	return domain.MeetingAccess{Link: link, MeetingID: meetingID, Passcode: passcode}, nil
}

// VerifyPasscode checks a join attempt in constant time. Records issued before a
// secret rotation keep validating against their stored passcode.
func (g *MeetingAccessGenerator) VerifyPasscode(iv *domain.Interview, passcode string) bool {
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return false
	}
	if stored := iv.MeetingAccess.Passcode; stored != "" {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(passcode)) == 1
	}
	ok, err := hotp.ValidateCustom(passcode, 0, g.passcodeSecret(g.digest(iv.ID)), hotpOpts)
	return err == nil && ok
}
