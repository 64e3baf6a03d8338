package fsm

import (
	"github.com/pgwire/client/internal/wire/message"
	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/pgerr"
)

// handleAuth advances the handshake on one Authentication* backend message.
func (m *Machine) handleAuth(mm *message.Authentication) ([]byte, error) {
	switch mm.Kind {
	case types.AuthOK:
		m.state = Authenticated
		return nil, nil

	case types.AuthCleartextPassword:
		m.state = Authenticating
		return message.CleartextPassword(&m.w, m.creds.Password)

	case types.AuthMD5Password:
		m.state = Authenticating
		m.salt = mm.Salt
		return message.MD5Password(&m.w, m.creds.User, m.creds.Password, m.salt)

	case types.AuthSASL:
		ex, clientFirst, err := newSCRAMExchange(m.creds.User, m.creds.Password, mm.SASL)
		if err != nil {
			return nil, err
		}
		m.scram = ex
		m.state = Authenticating
		return message.SASLInitialResponse(&m.w, "SCRAM-SHA-256", clientFirst)

	case types.AuthSASLContinue:
		if m.scram == nil {
			return nil, &pgerr.ProtocolError{Msg: "AuthenticationSASLContinue with no exchange in progress"}
		}
		clientFinal, err := m.scram.continueExchange(mm.SASL, m.creds.Password)
		if err != nil {
			return nil, err
		}
		return message.SASLResponse(&m.w, clientFinal)

	case types.AuthSASLFinal:
		if m.scram == nil {
			return nil, &pgerr.ProtocolError{Msg: "AuthenticationSASLFinal with no exchange in progress"}
		}
		if err := m.scram.verifyFinal(mm.SASL); err != nil {
			return nil, err
		}
		m.scram = nil
		return nil, nil

	default:
		return nil, &pgerr.AuthError{Msg: "unsupported authentication method"}
	}
}
