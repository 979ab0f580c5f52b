package txscript

import (
	"bytes"
	"crypto/subtle"

	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
)

func scriptErr(msg string) error {
	return consensus.RuleErr(consensus.ERR_SCRIPT_FAILURE, msg)
}

func sigErr(msg string) error {
	return consensus.RuleErr(consensus.ERR_SIGNATURE_INVALID, msg)
}

// Engine executes one input's unlocking path against the previous output's
// script. A fresh Engine is built per input; it is not reused.
type Engine struct {
	tx         *consensus.Tx
	inputIndex int
	prevValue  uint64

	verifier *crypto.Verifier
	sigCache *SigCache

	// witnessMode selects the BIP143-style sighash; scriptCode is the
	// script committed by that sighash.
	witnessMode bool
	scriptCode  []byte

	stack     [][]byte
	condStack []bool
	opCount   int
}

// VerifyInput runs the full spend check for tx.Inputs[inputIndex] against
// prevOut. It resolves the standard templates (P2PKH, P2SH, P2WPKH, P2WSH,
// quantum witness) and executes the interpreter for script paths. A passing
// spend leaves exactly one true element on the stack.
func VerifyInput(tx *consensus.Tx, inputIndex int, prevOut *consensus.TxOut, verifier *crypto.Verifier, sigCache *SigCache) error {
	if inputIndex < 0 || inputIndex >= len(tx.Inputs) {
		return scriptErr("input index out of range")
	}
	in := &tx.Inputs[inputIndex]
	if len(prevOut.ScriptPubKey) == 0 {
		return scriptErr("spend of unspendable output")
	}
	class := ClassifyScript(prevOut.ScriptPubKey)

	switch class {
	case WitnessPubKeyHash:
		return verifyWitnessKeyHash(tx, inputIndex, prevOut, verifier, sigCache)
	case WitnessScriptHash:
		return verifyWitnessScriptHash(tx, inputIndex, prevOut, verifier, sigCache)
	case QuantumWitness:
		return verifyQuantumWitness(tx, inputIndex, prevOut, verifier, sigCache)
	case NullData:
		return scriptErr("spend of unspendable output")
	}

	if len(in.Witness) != 0 {
		return scriptErr("witness on non-witness input")
	}

	// Legacy path: scriptSig must be push-only; its results seed the stack
	// for the script_pubkey.
	sigOps, err := parseScript(in.ScriptSig)
	if err != nil {
		return err
	}
	var stack [][]byte
	for _, op := range sigOps {
		if !op.isPush() {
			return scriptErr("script_sig is not push-only")
		}
		stack = append(stack, op.pushValue())
	}

	if class == ScriptHash {
		if len(stack) == 0 {
			return scriptErr("p2sh: empty script_sig")
		}
		redeemScript := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		want := prevOut.ScriptPubKey[2:22]
		got := consensus.Hash160(redeemScript)
		if !bytes.Equal(got[:], want) {
			return scriptErr("p2sh: redeem script hash mismatch")
		}
		return executeWithStack(tx, inputIndex, prevOut.Value, redeemScript, stack, false, verifier, sigCache)
	}

	return executeWithStack(tx, inputIndex, prevOut.Value, prevOut.ScriptPubKey, stack, false, verifier, sigCache)
}

func verifyWitnessKeyHash(tx *consensus.Tx, inputIndex int, prevOut *consensus.TxOut, verifier *crypto.Verifier, sigCache *SigCache) error {
	in := &tx.Inputs[inputIndex]
	if len(in.ScriptSig) != 0 {
		return scriptErr("p2wpkh: script_sig must be empty")
	}
	if len(in.Witness) != 2 {
		return scriptErr("p2wpkh: want 2 witness items")
	}
	_, program := witnessProgram(prevOut.ScriptPubKey)
	var pkh [20]byte
	copy(pkh[:], program)
	// The implied script code is the matching P2PKH script.
	scriptCode := PayToPubKeyHash(pkh)
	stack := [][]byte{in.Witness[0], in.Witness[1]}
	return executeWithStack(tx, inputIndex, prevOut.Value, scriptCode, stack, true, verifier, sigCache)
}

func verifyWitnessScriptHash(tx *consensus.Tx, inputIndex int, prevOut *consensus.TxOut, verifier *crypto.Verifier, sigCache *SigCache) error {
	in := &tx.Inputs[inputIndex]
	if len(in.ScriptSig) != 0 {
		return scriptErr("p2wsh: script_sig must be empty")
	}
	if len(in.Witness) == 0 {
		return scriptErr("p2wsh: empty witness")
	}
	witnessScript := in.Witness[len(in.Witness)-1]
	_, program := witnessProgram(prevOut.ScriptPubKey)
	got := consensus.Sha256(witnessScript)
	if !bytes.Equal(got[:], program) {
		return scriptErr("p2wsh: witness script hash mismatch")
	}
	stack := make([][]byte, len(in.Witness)-1)
	copy(stack, in.Witness[:len(in.Witness)-1])
	return executeWithStack(tx, inputIndex, prevOut.Value, witnessScript, stack, true, verifier, sigCache)
}

// verifyQuantumWitness checks a v1 program spend: witness = [sig, pubkey]
// with SHA256(pubkey) equal to the program and sig carrying a post-quantum
// scheme tag.
func verifyQuantumWitness(tx *consensus.Tx, inputIndex int, prevOut *consensus.TxOut, verifier *crypto.Verifier, sigCache *SigCache) error {
	in := &tx.Inputs[inputIndex]
	if len(in.ScriptSig) != 0 {
		return scriptErr("quantum: script_sig must be empty")
	}
	if len(in.Witness) != 2 {
		return scriptErr("quantum: want 2 witness items")
	}
	sig, pubkey := in.Witness[0], in.Witness[1]
	_, program := witnessProgram(prevOut.ScriptPubKey)
	got := consensus.Sha256(pubkey)
	if subtle.ConstantTimeCompare(got[:], program) != 1 {
		return sigErr("quantum: pubkey hash mismatch")
	}

	digest, err := WitnessSighash(tx, inputIndex, prevOut.ScriptPubKey, prevOut.Value)
	if err != nil {
		return err
	}
	scheme, rawSig, err := splitTaggedSig(sig)
	if err != nil {
		return err
	}
	if !scheme.IsQuantumResistant() {
		return sigErr("quantum: classical scheme under quantum program")
	}
	ok, err := checkSigCached(tx, inputIndex, digest, scheme, pubkey, rawSig, verifier, sigCache)
	if err != nil {
		return err
	}
	if !ok {
		return sigErr("quantum: signature rejected")
	}
	return nil
}

func executeWithStack(tx *consensus.Tx, inputIndex int, prevValue uint64, script []byte, stack [][]byte, witnessMode bool, verifier *crypto.Verifier, sigCache *SigCache) error {
	e := &Engine{
		tx:          tx,
		inputIndex:  inputIndex,
		prevValue:   prevValue,
		verifier:    verifier,
		sigCache:    sigCache,
		witnessMode: witnessMode,
		scriptCode:  script,
		stack:       stack,
	}
	if err := e.run(script); err != nil {
		return err
	}
	if len(e.stack) != 1 {
		return scriptErr("script did not leave exactly one element")
	}
	if !asBool(e.stack[0]) {
		return scriptErr("script left false on the stack")
	}
	return nil
}

func (e *Engine) run(script []byte) error {
	ops, err := parseScript(script)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := e.step(op); err != nil {
			return err
		}
		if len(e.stack)+len(e.condStack) > MaxStackSize {
			return scriptErr("stack size above limit")
		}
	}
	if len(e.condStack) != 0 {
		return scriptErr("unbalanced conditional")
	}
	return nil
}

// executing reports whether the current conditional branch is live.
func (e *Engine) executing() bool {
	for _, c := range e.condStack {
		if !c {
			return false
		}
	}
	return true
}

func (e *Engine) step(op parsedOp) error {
	if disabledOpcodes[op.op] {
		return scriptErr("disabled opcode")
	}

	// Conditionals are tracked even in dead branches.
	switch op.op {
	case OP_IF, OP_NOTIF:
		cond := false
		if e.executing() {
			top, err := e.pop()
			if err != nil {
				return err
			}
			cond = asBool(top)
			if op.op == OP_NOTIF {
				cond = !cond
			}
		}
		e.condStack = append(e.condStack, cond)
		return nil
	case OP_ELSE:
		if len(e.condStack) == 0 {
			return scriptErr("else without if")
		}
		e.condStack[len(e.condStack)-1] = !e.condStack[len(e.condStack)-1]
		return nil
	case OP_ENDIF:
		if len(e.condStack) == 0 {
			return scriptErr("endif without if")
		}
		e.condStack = e.condStack[:len(e.condStack)-1]
		return nil
	}

	if !e.executing() {
		return nil
	}

	if op.isPush() {
		e.stack = append(e.stack, op.pushValue())
		return nil
	}

	e.opCount++
	if e.opCount > MaxOpsPerScript {
		return scriptErr("operation count above limit")
	}

	switch op.op {
	case OP_NOP:
		return nil
	case OP_VERIFY:
		top, err := e.pop()
		if err != nil {
			return err
		}
		if !asBool(top) {
			return scriptErr("verify failed")
		}
		return nil
	case OP_RETURN:
		return scriptErr("op_return executed")
	case OP_DROP:
		_, err := e.pop()
		return err
	case OP_DUP:
		top, err := e.peek()
		if err != nil {
			return err
		}
		e.stack = append(e.stack, append([]byte(nil), top...))
		return nil
	case OP_SWAP:
		if len(e.stack) < 2 {
			return scriptErr("swap: stack underflow")
		}
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2] = e.stack[n-2], e.stack[n-1]
		return nil
	case OP_EQUAL, OP_EQUALVERIFY:
		b, err := e.pop()
		if err != nil {
			return err
		}
		a, err := e.pop()
		if err != nil {
			return err
		}
		equal := bytes.Equal(a, b)
		if op.op == OP_EQUALVERIFY {
			if !equal {
				return scriptErr("equalverify failed")
			}
			return nil
		}
		e.pushBool(equal)
		return nil
	case OP_RIPEMD160:
		return e.hashTop(func(b []byte) []byte {
			h := consensus.Ripemd160(b)
			return h[:]
		})
	case OP_SHA256:
		return e.hashTop(func(b []byte) []byte {
			h := consensus.Sha256(b)
			return h[:]
		})
	case OP_HASH160:
		return e.hashTop(func(b []byte) []byte {
			h := consensus.Hash160(b)
			return h[:]
		})
	case OP_HASH256:
		return e.hashTop(func(b []byte) []byte {
			h := consensus.DoubleSha256(b)
			return h[:]
		})
	case OP_CHECKSIG, OP_CHECKSIGVERIFY:
		return e.opCheckSig(op.op == OP_CHECKSIGVERIFY)
	case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
		return e.opCheckMultiSig(op.op == OP_CHECKMULTISIGVERIFY)
	case OP_CHECKLOCKTIMEVERIFY:
		return e.opCheckLockTime()
	default:
		return scriptErr("unknown opcode")
	}
}

func (e *Engine) pop() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, scriptErr("stack underflow")
	}
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return top, nil
}

func (e *Engine) peek() ([]byte, error) {
	if len(e.stack) == 0 {
		return nil, scriptErr("stack underflow")
	}
	return e.stack[len(e.stack)-1], nil
}

func (e *Engine) pushBool(v bool) {
	if v {
		e.stack = append(e.stack, []byte{1})
	} else {
		e.stack = append(e.stack, nil)
	}
}

func (e *Engine) hashTop(h func([]byte) []byte) error {
	top, err := e.pop()
	if err != nil {
		return err
	}
	e.stack = append(e.stack, h(top))
	return nil
}

// sighash computes the digest OP_CHECKSIG verifies for the current context.
func (e *Engine) sighash() (consensus.Hash, error) {
	if e.witnessMode {
		return WitnessSighash(e.tx, e.inputIndex, e.scriptCode, e.prevValue)
	}
	return LegacySighash(e.tx, e.inputIndex, e.scriptCode)
}

func (e *Engine) opCheckSig(verify bool) error {
	pubkey, err := e.pop()
	if err != nil {
		return err
	}
	sig, err := e.pop()
	if err != nil {
		return err
	}
	ok, err := e.checkOneSig(sig, pubkey)
	if err != nil {
		return err
	}
	if verify {
		if !ok {
			return sigErr("checksigverify failed")
		}
		return nil
	}
	e.pushBool(ok)
	return nil
}

// checkOneSig verifies a tagged signature against a pubkey, treating an
// empty signature as a clean false rather than an error so multisig can
// probe.
func (e *Engine) checkOneSig(sig, pubkey []byte) (bool, error) {
	if len(sig) == 0 {
		return false, nil
	}
	scheme, rawSig, err := splitTaggedSig(sig)
	if err != nil {
		return false, err
	}
	digest, err := e.sighash()
	if err != nil {
		return false, err
	}
	return checkSigCached(e.tx, e.inputIndex, digest, scheme, pubkey, rawSig, e.verifier, e.sigCache)
}

// opCheckMultiSig implements m-of-n with in-order matching: signatures must
// appear in the same relative order as the public keys they match.
func (e *Engine) opCheckMultiSig(verify bool) error {
	nRaw, err := e.pop()
	if err != nil {
		return err
	}
	n, err := parseScriptNum(nRaw, 4)
	if err != nil || n < 0 || n > MaxPubKeysPerMulti {
		return scriptErr("multisig: bad pubkey count")
	}
	pubkeys := make([][]byte, 0, n)
	for i := int64(0); i < n; i++ {
		pk, err := e.pop()
		if err != nil {
			return err
		}
		pubkeys = append(pubkeys, pk)
	}
	mRaw, err := e.pop()
	if err != nil {
		return err
	}
	m, err := parseScriptNum(mRaw, 4)
	if err != nil || m < 0 || m > n {
		return scriptErr("multisig: bad signature count")
	}
	sigs := make([][]byte, 0, m)
	for i := int64(0); i < m; i++ {
		sig, err := e.pop()
		if err != nil {
			return err
		}
		sigs = append(sigs, sig)
	}
	// Historical off-by-one: an extra element is consumed.
	if _, err := e.pop(); err != nil {
		return err
	}

	// Stacks pop in reverse push order; restore script order.
	reverse(pubkeys)
	reverse(sigs)

	sigIdx := 0
	for pkIdx := 0; pkIdx < len(pubkeys) && sigIdx < len(sigs); pkIdx++ {
		remaining := len(sigs) - sigIdx
		if remaining > len(pubkeys)-pkIdx {
			break
		}
		ok, err := e.checkOneSig(sigs[sigIdx], pubkeys[pkIdx])
		if err != nil {
			return err
		}
		if ok {
			sigIdx++
		}
	}
	success := sigIdx == len(sigs)
	if verify {
		if !success {
			return sigErr("checkmultisigverify failed")
		}
		return nil
	}
	e.pushBool(success)
	return nil
}

func (e *Engine) opCheckLockTime() error {
	top, err := e.peek()
	if err != nil {
		return err
	}
	lockTime, err := parseScriptNum(top, 5)
	if err != nil || lockTime < 0 {
		return scriptErr("cltv: bad locktime operand")
	}
	if uint64(lockTime) > uint64(e.tx.Locktime) {
		return scriptErr("cltv: locktime not reached")
	}
	if e.tx.Inputs[e.inputIndex].Sequence == 0xffffffff {
		return scriptErr("cltv: input sequence is final")
	}
	return nil
}

// splitTaggedSig separates the trailing scheme tag byte from a signature
// push.
func splitTaggedSig(sig []byte) (crypto.SchemeID, []byte, error) {
	if len(sig) < 2 {
		return 0, nil, sigErr("signature too short")
	}
	scheme, err := crypto.ParseSchemeID(sig[len(sig)-1])
	if err != nil {
		return 0, nil, consensus.RuleErr(consensus.ERR_UNSUPPORTED, "unknown signature scheme tag")
	}
	return scheme, sig[:len(sig)-1], nil
}

// checkSigCached consults the signature cache before running the verifier
// and records positive results. Failures are never cached as verdicts.
func checkSigCached(tx *consensus.Tx, inputIndex int, digest consensus.Hash, scheme crypto.SchemeID, pubkey, sig []byte, verifier *crypto.Verifier, sigCache *SigCache) (bool, error) {
	var key SigCacheKey
	if sigCache != nil {
		key = NewSigCacheKey(tx.TxID(), uint32(inputIndex), digest, pubkey, sig)
		if sigCache.Contains(key) {
			return true, nil
		}
	}
	ok, err := verifier.Verify(scheme, pubkey, digest[:], sig)
	if err != nil {
		return false, sigVerifyError(err)
	}
	if ok && sigCache != nil {
		sigCache.Add(key)
	}
	return ok, nil
}

func sigVerifyError(err error) error {
	switch err {
	case crypto.ErrUnsupportedScheme, crypto.ErrSchemeGatedOff:
		return consensus.RuleErr(consensus.ERR_UNSUPPORTED, err.Error())
	default:
		return consensus.RuleErr(consensus.ERR_SIGNATURE_INVALID, err.Error())
	}
}

// asBool applies the script truth rule: empty and all-zero (allowing a
// negative-zero top byte) are false.
func asBool(b []byte) bool {
	for i, v := range b {
		if v != 0 {
			if i == len(b)-1 && v == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}

func reverse(items [][]byte) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
