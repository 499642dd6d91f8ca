package service

import (
	"crypto/rand"
	"io"
	"math/big"
	"time"
)

const (
	appNumAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	appNumSuffixLen  = 4
	appNumMaxAttempt = 8
)

// NewApplicationNum formats APP-<UTC YYYYMMDD>-<4 random base36 chars>.
func NewApplicationNum(now time.Time) (string, error) {
	return applicationNum(now, rand.Reader)
}

func applicationNum(now time.Time, r io.Reader) (string, error) {
	suffix := make([]byte, appNumSuffixLen)
	base := big.NewInt(int64(len(appNumAlphabet)))
	for i := range suffix {
		n, err := rand.Int(r, base)
		if err != nil {
			return "", err
		}
		suffix[i] = appNumAlphabet[n.Int64()]
	}
	return "APP-" + now.UTC().Format("20060102") + "-" + string(suffix), nil
}
