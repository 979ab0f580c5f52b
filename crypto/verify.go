package crypto

import (
	"crypto/ed25519"
	"sync"

	circlsign "github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// VerificationMode selects which scheme families a Verifier accepts.
type VerificationMode int

const (
	// ModeStandard accepts classical and quantum schemes alike.
	ModeStandard VerificationMode = iota
	// ModeStrictQuantumResistant rejects classical-only signatures.
	ModeStrictQuantumResistant
	// ModePerformance accepts everything ModeStandard does; callers that
	// can choose prefer classical schemes for speed.
	ModePerformance
)

// Verifier checks signatures under a verification mode. The zero value is a
// standard-mode verifier with experimental schemes disabled.
type Verifier struct {
	Mode VerificationMode

	// EnableExperimentalSchemes gates hybrid. When off, hybrid fails with
	// ErrSchemeGatedOff rather than being silently accepted; Falcon fails
	// with ErrSchemeGatedOff whether the flag is set or not.
	EnableExperimentalSchemes bool
}

var (
	mldsa44Scheme = schemes.ByName("ML-DSA-44")
	mldsa65Scheme = schemes.ByName("ML-DSA-65")
	mldsa87Scheme = schemes.ByName("ML-DSA-87")
	slhdsaScheme  = schemes.ByName("SLH-DSA-SHAKE-128s")
)

func circlScheme(id SchemeID) circlsign.Scheme {
	switch id {
	case SchemeDilithium2:
		return mldsa44Scheme
	case SchemeDilithium3:
		return mldsa65Scheme
	case SchemeDilithium5:
		return mldsa87Scheme
	case SchemeSphincsPlus:
		return slhdsaScheme
	default:
		return nil
	}
}

// Verify checks sig over msg under the given scheme and public key.
//
// The boolean reports signature validity; a non-nil error reports that the
// check could not be performed at all (unknown scheme, malformed key, mode
// refusal). Callers must treat (false, nil) and any error as a failed spend,
// but only errors participate in the Unsupported taxonomy.
func (v *Verifier) Verify(id SchemeID, pubkey, msg, sig []byte) (bool, error) {
	if v.Mode == ModeStrictQuantumResistant && !id.IsQuantumResistant() {
		return false, ErrQuantumRequired
	}
	switch id {
	case SchemeSecp256k1:
		return verifySecp256k1(pubkey, msg, sig)
	case SchemeEd25519:
		return verifyEd25519(pubkey, msg, sig)
	case SchemeDilithium2, SchemeDilithium3, SchemeDilithium5, SchemeSphincsPlus:
		return verifyCircl(id, pubkey, msg, sig)
	case SchemeFalcon:
		return false, ErrSchemeGatedOff
	case SchemeHybrid:
		if !v.EnableExperimentalSchemes {
			return false, ErrSchemeGatedOff
		}
		return v.verifyHybrid(pubkey, msg, sig)
	default:
		return false, ErrUnsupportedScheme
	}
}

func verifySecp256k1(pubkey, msg, sig []byte) (bool, error) {
	pk, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return false, ErrInvalidPublicKey
	}
	parsed, err := secpecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, ErrInvalidSignature
	}
	digest := sha256Sum(msg)
	return parsed.Verify(digest[:], pk), nil
}

func verifyEd25519(pubkey, msg, sig []byte) (bool, error) {
	if len(pubkey) != ed25519.PublicKeySize {
		return false, ErrInvalidPublicKey
	}
	if len(sig) != ed25519.SignatureSize {
		return false, ErrInvalidSignature
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), msg, sig), nil
}

func verifyCircl(id SchemeID, pubkey, msg, sig []byte) (bool, error) {
	scheme := circlScheme(id)
	if scheme == nil {
		return false, ErrUnsupportedScheme
	}
	if len(pubkey) != scheme.PublicKeySize() {
		return false, ErrInvalidPublicKey
	}
	if len(sig) != scheme.SignatureSize() {
		return false, ErrInvalidSignature
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pubkey)
	if err != nil {
		return false, ErrInvalidPublicKey
	}
	return scheme.Verify(pk, msg, sig, nil), nil
}

// verifyHybrid splits the composite key and signature and requires both
// components to verify over the same message.
func (v *Verifier) verifyHybrid(pubkey, msg, sig []byte) (bool, error) {
	pkParts, err := splitHybrid(pubkey)
	if err != nil {
		return false, ErrInvalidPublicKey
	}
	sigParts, err := splitHybrid(sig)
	if err != nil {
		return false, ErrInvalidSignature
	}
	if pkParts.classicalID != sigParts.classicalID || pkParts.quantumID != sigParts.quantumID {
		return false, ErrInvalidSignature
	}
	okClassical, err := v.verifyComponent(pkParts.classicalID, pkParts.classical, msg, sigParts.classical)
	if err != nil {
		return false, err
	}
	okQuantum, err := v.verifyComponent(pkParts.quantumID, pkParts.quantum, msg, sigParts.quantum)
	if err != nil {
		return false, err
	}
	return okClassical && okQuantum, nil
}

// verifyComponent verifies a hybrid component without re-applying the strict
// mode check: the composite as a whole already counts as quantum-resistant.
func (v *Verifier) verifyComponent(id SchemeID, pubkey, msg, sig []byte) (bool, error) {
	inner := Verifier{Mode: ModeStandard, EnableExperimentalSchemes: v.EnableExperimentalSchemes}
	return inner.Verify(id, pubkey, msg, sig)
}

// BatchRequest is one signature check in a batch.
type BatchRequest struct {
	Scheme SchemeID
	Pubkey []byte
	Msg    []byte
	Sig    []byte
}

// BatchResult carries the outcome for the request at the same index.
type BatchResult struct {
	OK  bool
	Err error
}

// VerifyBatch checks requests concurrently. Results are positionally equal
// to what sequential Verify calls would produce for every element.
func (v *Verifier) VerifyBatch(requests []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(requests))
	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := requests[i]
			ok, err := v.Verify(r.Scheme, r.Pubkey, r.Msg, r.Sig)
			results[i] = BatchResult{OK: ok, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}
