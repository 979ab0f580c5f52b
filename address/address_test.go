package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"supernova.dev/node/consensus"
	"supernova.dev/node/crypto"
	"supernova.dev/node/txscript"
)

func TestAddress_RoundTripKeyHash(t *testing.T) {
	var program [20]byte
	for i := range program {
		program[i] = byte(i)
	}
	addr, err := Encode("nova", 0, program[:])
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr, "nova1"))

	version, got, err := Decode(addr, "nova")
	require.NoError(t, err)
	require.Equal(t, byte(0), version)
	require.Equal(t, program[:], got)
}

func TestAddress_QuantumVersionByte(t *testing.T) {
	key, err := crypto.GenerateKey(crypto.SchemeDilithium2, false)
	require.NoError(t, err)
	script := txscript.PayToQuantumWitness(key.Public)

	addr, err := FromScript("tnova", script)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr, "tnova1"))

	version, program, err := Decode(addr, "tnova")
	require.NoError(t, err)
	require.Equal(t, byte(1), version)
	require.Len(t, program, 32)

	back, err := PayScript(version, program)
	require.NoError(t, err)
	require.Equal(t, script, back)
}

func TestAddress_WrongNetworkRejected(t *testing.T) {
	var program [20]byte
	addr, err := Encode("nova", 0, program[:])
	require.NoError(t, err)
	_, _, err = Decode(addr, "tnova")
	require.ErrorIs(t, err, ErrWrongNetwork)
}

func TestAddress_BadProgramLength(t *testing.T) {
	_, err := Encode("nova", 0, make([]byte, 21))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddress_ScriptRoundTrip(t *testing.T) {
	pkh := consensus.Hash160([]byte("pubkey"))
	script := txscript.PayToWitnessPubKeyHash(pkh)
	addr, err := FromScript("nova", script)
	require.NoError(t, err)
	version, program, err := Decode(addr, "nova")
	require.NoError(t, err)
	back, err := PayScript(version, program)
	require.NoError(t, err)
	require.Equal(t, script, back)
}
