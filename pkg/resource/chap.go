package resource

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/marmos91/nvmeof-gateway/pkg/gwerrors"
)

// dhchapKeyLen is the raw secret length NVMe-oF DH-HMAC-CHAP uses with
// the HMAC-SHA-256 hash function (32 bytes), per NVMe base spec TP8018.
const dhchapKeyLen = 32

// dhchapKeyPrefix marks the base64 secret as an NVMe DH-HMAC-CHAP key,
// matching the "DHHC-1:00:" wire convention hosts and controllers use
// to identify the transform and hash function.
const dhchapKeyPrefix = "DHHC-1:00:"

// GenerateDHCHAPKeyPair produces a new random DH-HMAC-CHAP host key and,
// when bidirectional authentication is requested, a distinct controller
// key, supplementing the spec's add_host contract: the reference
// implementation delegates key material generation to an external
// nvmeof-cli helper (original_source/control/utils.py's generate_key);
// this gateway generates it in-process instead.
//
// The two keys are not two independent crypto/rand draws: one random
// seed is stretched into both legs with HKDF-SHA-256 (RFC 5869,
// golang.org/x/crypto/hkdf) under distinct info labels, so a host key
// and its paired controller key are cryptographically separated even
// though DH-HMAC-CHAP's host and controller authentication legs run
// over the same connection in opposite directions.
func GenerateDHCHAPKeyPair(bidirectional bool) (hostKey, ctrlKey string, err error) {
	seed := make([]byte, dhchapKeyLen)
	if _, err := rand.Read(seed); err != nil {
		return "", "", fmt.Errorf("%w: generate DH-HMAC-CHAP seed: %w", gwerrors.ErrFatal, err)
	}

	hostSecret, err := hkdfExpand(seed, "nvmeof-dhchap-host")
	if err != nil {
		return "", "", fmt.Errorf("%w: derive DH-HMAC-CHAP host key: %w", gwerrors.ErrFatal, err)
	}
	hostKey = dhchapKeyPrefix + base64.StdEncoding.EncodeToString(hostSecret) + ":"

	if !bidirectional {
		return hostKey, "", nil
	}

	ctrlSecret, err := hkdfExpand(seed, "nvmeof-dhchap-ctrl")
	if err != nil {
		return "", "", fmt.Errorf("%w: derive DH-HMAC-CHAP controller key: %w", gwerrors.ErrFatal, err)
	}
	ctrlKey = dhchapKeyPrefix + base64.StdEncoding.EncodeToString(ctrlSecret) + ":"
	return hostKey, ctrlKey, nil
}

// hkdfExpand stretches seed into a dhchapKeyLen-byte secret under info,
// with no salt: seed is already uniformly random from crypto/rand, so
// HKDF-Extract would add nothing HKDF-Expand alone doesn't provide.
func hkdfExpand(seed []byte, info string) ([]byte, error) {
	out := make([]byte, dhchapKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(info)), out); err != nil {
		return nil, err
	}
	return out, nil
}

// dhchapChallengeResponse computes the DH-HMAC-CHAP HMAC-SHA-256
// response to a challenge, used only by tests and diagnostics to
// validate a generated key round-trips through the same transform the
// engine applies.
func dhchapChallengeResponse(key, challenge []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(challenge)
	return mac.Sum(nil)
}
