package consensus

import "encoding/binary"

// Subsidy schedule: 50 NOVA at genesis, halving every 840_000 blocks, at
// most 64 halvings. Issuance outside the coinbase is impossible by
// construction.
const (
	INITIAL_SUBSIDY  = 50 * NOVAS_PER_NOVA
	HALVING_INTERVAL = 840_000
	MAX_HALVINGS     = 63
)

// Environmental bonus percentages. A miner's validated renewable fraction r
// scales REN_BONUS_PERCENT; the efficiency and carbon-negative attestations
// add flat bonuses; the combined multiplier is capped at MAX_BONUS_PERCENT.
const (
	REN_BONUS_PERCENT        = 20
	EFF_BONUS_PERCENT        = 10
	CARBON_NEG_BONUS_PERCENT = 45
	MAX_BONUS_PERCENT        = 75
)

// Attestation flag bits carried in the coinbase environmental byte.
const (
	ENV_FLAG_EFFICIENCY      = 0x01
	ENV_FLAG_CARBON_NEGATIVE = 0x02
)

// BaseSubsidy returns the pre-bonus subsidy for a block at the given height.
func BaseSubsidy(height uint64) uint64 {
	halvings := height / HALVING_INTERVAL
	if halvings > MAX_HALVINGS {
		return 0
	}
	return INITIAL_SUBSIDY >> halvings
}

// EnvironmentalBonus computes the bonus on top of baseSubsidy for a miner
// with renewable fraction renewablePercent (clamped to [0,100]) and the
// given attestation flags. The multiplication is checked; on overflow the
// bonus is zero and the caller keeps the base subsidy, never a wrap.
func EnvironmentalBonus(baseSubsidy uint64, renewablePercent uint8, envFlags uint8) uint64 {
	if renewablePercent > 100 {
		renewablePercent = 100
	}
	bonusPercent := uint64(renewablePercent) * REN_BONUS_PERCENT / 100
	if envFlags&ENV_FLAG_EFFICIENCY != 0 {
		bonusPercent += EFF_BONUS_PERCENT
	}
	if envFlags&ENV_FLAG_CARBON_NEGATIVE != 0 {
		bonusPercent += CARBON_NEG_BONUS_PERCENT
	}
	if bonusPercent > MAX_BONUS_PERCENT {
		bonusPercent = MAX_BONUS_PERCENT
	}
	bonus, err := PercentageSafe(baseSubsidy, bonusPercent)
	if err != nil {
		return 0
	}
	return bonus
}

// MaxCoinbaseValue returns the cap on a coinbase's output sum for a block at
// height claiming the given environmental inputs and collecting totalFees.
func MaxCoinbaseValue(height uint64, renewablePercent uint8, envFlags uint8, totalFees uint64) (uint64, error) {
	base := BaseSubsidy(height)
	bonus := EnvironmentalBonus(base, renewablePercent, envFlags)
	withBonus, err := SafeAdd(base, bonus)
	if err != nil {
		return 0, err
	}
	return SafeAdd(withBonus, totalFees)
}

// BuildCoinbaseScriptSig assembles the coinbase scriptSig: a BIP34-style
// minimal height push, the two environmental bytes (renewable percent and
// attestation flags), an extra-nonce push, and an optional message capped
// at 100 bytes.
func BuildCoinbaseScriptSig(height uint64, renewablePercent uint8, envFlags uint8, extraNonce uint64, message []byte) []byte {
	heightBytes := minimalHeightPush(height)
	out := make([]byte, 0, 2+len(heightBytes)+2+9+1+len(message))
	out = append(out, byte(len(heightBytes)))
	out = append(out, heightBytes...)
	out = append(out, renewablePercent, envFlags)
	out = append(out, 8)
	out = binary.LittleEndian.AppendUint64(out, extraNonce)
	if len(message) > 0 {
		if len(message) > 100 {
			message = message[:100]
		}
		out = append(out, byte(len(message)))
		out = append(out, message...)
	}
	return out
}

func minimalHeightPush(height uint64) []byte {
	if height == 0 {
		return []byte{0}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], height)
	n := 8
	for n > 1 && buf[n-1] == 0 {
		n--
	}
	return buf[:n]
}

// ParseCoinbaseScriptSig extracts the committed height and the environmental
// inputs from a coinbase scriptSig.
func ParseCoinbaseScriptSig(scriptSig []byte) (height uint64, renewablePercent uint8, envFlags uint8, err error) {
	if len(scriptSig) < 2 {
		return 0, 0, 0, ruleErr(ERR_MISSING_COINBASE, "coinbase script_sig too short")
	}
	pushLen := int(scriptSig[0])
	if pushLen == 0 || pushLen > 8 || len(scriptSig) < 1+pushLen+2 {
		return 0, 0, 0, ruleErr(ERR_MISSING_COINBASE, "coinbase height push malformed")
	}
	var buf [8]byte
	copy(buf[:], scriptSig[1:1+pushLen])
	height = binary.LittleEndian.Uint64(buf[:])
	if pushLen > 1 && scriptSig[pushLen] == 0 {
		return 0, 0, 0, ruleErr(ERR_MISSING_COINBASE, "coinbase height push non-minimal")
	}
	renewablePercent = scriptSig[1+pushLen]
	envFlags = scriptSig[1+pushLen+1]
	return height, renewablePercent, envFlags, nil
}

// NewCoinbaseTx builds a coinbase paying value to payoutScript at height.
func NewCoinbaseTx(height uint64, value uint64, payoutScript []byte, renewablePercent uint8, envFlags uint8, extraNonce uint64) *Tx {
	return &Tx{
		Version: 2,
		Inputs: []TxIn{{
			Prev:      OutPoint{Vout: COINBASE_PREV_VOUT},
			ScriptSig: BuildCoinbaseScriptSig(height, renewablePercent, envFlags, extraNonce, nil),
			Sequence:  0xffffffff,
		}},
		Outputs: []TxOut{{Value: value, ScriptPubKey: payoutScript}},
	}
}
