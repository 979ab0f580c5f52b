package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	circlsign "github.com/cloudflare/circl/sign"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

func sha256Sum(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// KeyPair holds an in-memory signing key for one scheme. Block validation
// never signs; this exists for the miner, the test harness, and tooling.
type KeyPair struct {
	Scheme  SchemeID
	Public  []byte
	private any
}

// GenerateKey creates a fresh key pair for the scheme. Falcon, and hybrid
// when the experimental gate is off, return ErrUnsupportedScheme.
func GenerateKey(id SchemeID, experimentalEnabled bool) (*KeyPair, error) {
	switch id {
	case SchemeSecp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		return &KeyPair{
			Scheme:  id,
			Public:  priv.PubKey().SerializeCompressed(),
			private: priv,
		}, nil
	case SchemeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Scheme: id, Public: pub, private: priv}, nil
	case SchemeDilithium2, SchemeDilithium3, SchemeDilithium5, SchemeSphincsPlus:
		scheme := circlScheme(id)
		if scheme == nil {
			return nil, ErrUnsupportedScheme
		}
		pub, priv, err := scheme.GenerateKey()
		if err != nil {
			return nil, err
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return &KeyPair{Scheme: id, Public: pubBytes, private: priv}, nil
	case SchemeHybrid:
		if !experimentalEnabled {
			return nil, ErrUnsupportedScheme
		}
		classical, err := GenerateKey(SchemeEd25519, experimentalEnabled)
		if err != nil {
			return nil, err
		}
		quantum, err := GenerateKey(SchemeDilithium3, experimentalEnabled)
		if err != nil {
			return nil, err
		}
		return &KeyPair{
			Scheme: id,
			Public: joinHybrid(SchemeEd25519, SchemeDilithium3, classical.Public, quantum.Public),
			private: [2]*KeyPair{classical, quantum},
		}, nil
	default:
		return nil, ErrUnsupportedScheme
	}
}

// Sign produces a signature over msg verifiable by Verifier.Verify with the
// same scheme and public key.
func (k *KeyPair) Sign(msg []byte) ([]byte, error) {
	switch k.Scheme {
	case SchemeSecp256k1:
		priv := k.private.(*secp256k1.PrivateKey)
		digest := sha256Sum(msg)
		return secpecdsa.Sign(priv, digest[:]).Serialize(), nil
	case SchemeEd25519:
		priv := k.private.(ed25519.PrivateKey)
		return ed25519.Sign(priv, msg), nil
	case SchemeDilithium2, SchemeDilithium3, SchemeDilithium5, SchemeSphincsPlus:
		scheme := circlScheme(k.Scheme)
		return scheme.Sign(k.private.(circlsign.PrivateKey), msg, nil), nil
	case SchemeHybrid:
		pair := k.private.([2]*KeyPair)
		classicalSig, err := pair[0].Sign(msg)
		if err != nil {
			return nil, err
		}
		quantumSig, err := pair[1].Sign(msg)
		if err != nil {
			return nil, err
		}
		return joinHybrid(pair[0].Scheme, pair[1].Scheme, classicalSig, quantumSig), nil
	default:
		return nil, ErrUnsupportedScheme
	}
}

func joinHybrid(classicalID, quantumID SchemeID, classical, quantum []byte) []byte {
	out := make([]byte, 0, 2+2+len(classical)+2+len(quantum))
	out = append(out, byte(classicalID), byte(quantumID))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(classical)))
	out = append(out, classical...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(quantum)))
	out = append(out, quantum...)
	return out
}
