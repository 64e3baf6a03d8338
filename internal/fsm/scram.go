package fsm

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgwire/client/pgerr"
	"golang.org/x/crypto/pbkdf2"
)

// scramExchange holds the client-side state of one SCRAM-SHA-256 exchange
// across its three backend messages (AuthenticationSASL/-Continue/-Final).
//
// Adapted from scramSHA256Auth in JeelKantaria-db-bouncer's
// internal/pool/scram.go: the teacher performs the whole exchange inline
// against a blocking net.Conn; here the same algorithm is split across
// three entry points driven by the FSM's one-message-at-a-time Handle loop.
type scramExchange struct {
	clientNonce     string
	clientFirstBare string

	saltedPassword    []byte
	authMessage       string
	expectedServerSig []byte
}

const gs2Header = "n,,"

func newSCRAMExchange(user, password string, mechanismList []byte) (*scramExchange, []byte, error) {
	mechanisms := parseSASLMechanisms(mechanismList)
	if !containsMechanism(mechanisms, "SCRAM-SHA-256") {
		return nil, nil, &pgerr.AuthError{Msg: fmt.Sprintf("server does not offer SCRAM-SHA-256, offered: %v", mechanisms)}
	}

	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, nil, &pgerr.AuthError{Msg: "generating client nonce: " + err.Error()}
	}
	clientNonce := base64.StdEncoding.EncodeToString(nonceBytes)
	clientFirstBare := fmt.Sprintf("n=%s,r=%s", escapeSASLUsername(user), clientNonce)

	ex := &scramExchange{
		clientNonce:     clientNonce,
		clientFirstBare: clientFirstBare,
	}
	return ex, []byte(gs2Header + clientFirstBare), nil
}

// continueExchange handles AuthenticationSASLContinue: it verifies the
// server nonce, derives the salted password, and returns the
// client-final-message to send as the SASLResponse.
func (ex *scramExchange) continueExchange(serverFirst []byte, password string) ([]byte, error) {
	serverFirstMsg := string(serverFirst)
	nonce, salt, iterations, err := parseServerFirst(serverFirstMsg)
	if err != nil {
		return nil, &pgerr.AuthError{Msg: err.Error()}
	}
	if !strings.HasPrefix(nonce, ex.clientNonce) {
		return nil, &pgerr.AuthError{Msg: "server nonce does not extend client nonce"}
	}

	ex.saltedPassword = pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)

	clientKey := hmacSHA256(ex.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, nonce)

	ex.authMessage = ex.clientFirstBare + "," + serverFirstMsg + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(ex.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	serverKey := hmacSHA256(ex.saltedPassword, []byte("Server Key"))
	ex.expectedServerSig = hmacSHA256(serverKey, []byte(ex.authMessage))

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(clientFinal), nil
}

// verifyFinal checks AuthenticationSASLFinal's server signature against the
// one computed in continueExchange.
func (ex *scramExchange) verifyFinal(serverFinal []byte) error {
	expected := "v=" + base64.StdEncoding.EncodeToString(ex.expectedServerSig)
	if string(serverFinal) != expected {
		return &pgerr.AuthError{Msg: "server SCRAM signature mismatch"}
	}
	return nil
}

func parseSASLMechanisms(data []byte) []string {
	var mechs []string
	for len(data) > 0 {
		idx := 0
		for idx < len(data) && data[idx] != 0 {
			idx++
		}
		if idx > 0 {
			mechs = append(mechs, string(data[:idx]))
		}
		if idx >= len(data) {
			break
		}
		data = data[idx+1:]
	}
	return mechs
}

func containsMechanism(mechs []string, target string) bool {
	for _, m := range mechs {
		if m == target {
			return true
		}
	}
	return false
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	parts := strings.Split(msg, ",")
	for _, part := range parts {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message: %q", msg)
	}
	return nonce, salt, iterations, nil
}

func escapeSASLUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	user = strings.ReplaceAll(user, ",", "=2C")
	return user
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
