package txscript

// Script numbers are little-endian, sign-magnitude with the sign carried in
// the top bit of the last byte, and must be minimally encoded.

// parseScriptNum decodes a stack element as a script number of at most
// maxLen bytes.
func parseScriptNum(b []byte, maxLen int) (int64, error) {
	if len(b) > maxLen {
		return 0, scriptErr("scriptnum: too long")
	}
	if len(b) == 0 {
		return 0, nil
	}
	// Minimality: the last byte may not be a bare sign extension.
	last := b[len(b)-1]
	if last&0x7f == 0 {
		if len(b) == 1 || b[len(b)-2]&0x80 == 0 {
			return 0, scriptErr("scriptnum: non-minimal encoding")
		}
	}
	var v int64
	for i, c := range b {
		v |= int64(c) << (8 * i)
	}
	if last&0x80 != 0 {
		v &^= int64(0x80) << (8 * (len(b) - 1))
		v = -v
	}
	return v, nil
}

// scriptNumBytes encodes v minimally.
func scriptNumBytes(v int64) []byte {
	if v == 0 {
		return nil
	}
	negative := v < 0
	abs := uint64(v)
	if negative {
		abs = uint64(-v)
	}
	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		if negative {
			out = append(out, 0x80)
		} else {
			out = append(out, 0x00)
		}
	} else if negative {
		out[len(out)-1] |= 0x80
	}
	return out
}
