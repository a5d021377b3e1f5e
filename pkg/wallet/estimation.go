package wallet

import "github.com/btcsuite/btcd/wire"

const (
	P2PK = iota
	P2PKH
	P2MS
	P2SH_P2WPKH
	P2SH_P2WSH
	P2WPKH
	P2WSH
	P2TR
)

// EstimateTxSize makes an estimation of the virtual size of a transaction for
// which is required to specify the type of the inputs and outputs according to
// those of the Bitcoin standard (P2PK, P2PKH, P2SH(P2WPKH), P2WPKH, P2WSH,
// P2TR).
// Inputs of type P2MS, P2SH(P2WSH) and P2WSH, as well as Taproot inputs spent
// through a script path, have no fixed size: their scriptSig and witness
// sizes must be passed as auxiliary slices in order of appearance. A P2TR
// input with no auxiliary witness size (0) is a key-path spend.
func EstimateTxSize(
	inScriptTypes, inAuxiliaryRedeemScriptSize, inAuxiliaryWitnessSize,
	outScriptTypes, outAuxiliaryScriptSize []int,
) int {
	weight := EstimateTxWeight(
		inScriptTypes, inAuxiliaryRedeemScriptSize, inAuxiliaryWitnessSize,
		outScriptTypes, outAuxiliaryScriptSize,
	)
	return (weight + 3) / 4
}

// EstimateTxWeight is like EstimateTxSize but returns the weight units.
func EstimateTxWeight(
	inScriptTypes, inAuxiliaryRedeemScriptSize, inAuxiliaryWitnessSize,
	outScriptTypes, outAuxiliaryScriptSize []int,
) int {
	baseSize := calcTxBaseSize(
		inScriptTypes, inAuxiliaryRedeemScriptSize,
		outScriptTypes, outAuxiliaryScriptSize,
	)
	witnessSize := calcTxWitnessSize(inScriptTypes, inAuxiliaryWitnessSize)

	return baseSize*4 + witnessSize
}

var (
	scriptSigSizeByScriptType = map[int]int{
		P2PK:        74,  // len + opcode + sig
		P2PKH:       108, // len + opcode + sig + opcode + pubkey
		P2SH_P2WPKH: 23,  // len + p2wpkh script
		P2SH_P2WSH:  35,  // len + p2wsh script
		P2WPKH:      1,   // no scriptsig, still len is serialized
		P2WSH:       1,   // no scriptsig
		P2TR:        1,   // no scriptsig
	}
	scriptPubKeySizeByScriptType = map[int]int{
		P2PK:        36, // len + pubkey compressed + opcode
		P2PKH:       26, // len + opcodes (3) + hash(pubkey) + opcodes (2)
		P2SH_P2WPKH: 24, // len + opcodes (2) + hash(script) + opcode
		P2SH_P2WSH:  24, // len + opcodes (2) + hash(script) + opcode
		P2WPKH:      23, // len + opcodes (2) + hash(pubkey)
		P2WSH:       35, // len + opcodes (2) + hash(script)
		P2TR:        35, // len + opcodes (2) + x-only key
	}
	witnessSizeByScriptType = map[int]int{
		P2SH_P2WPKH: 108, // items + len + sig + len + pubkey
		P2WPKH:      108,
		P2TR:        66, // items + len + schnorr sig (default sighash)
	}
)

func calcTxBaseSize(
	inScriptTypes, inAuxiliaryRedeemScriptSize,
	outScriptTypes, outAuxiliaryScriptSize []int,
) int {
	// hash + index + sequence
	inBaseSize := 40
	insSize := 0
	auxCount := 0
	for _, scriptType := range inScriptTypes {
		scriptSize, ok := scriptSigSizeByScriptType[scriptType]
		if !ok {
			scriptSize = inAuxiliaryRedeemScriptSize[auxCount]
			auxCount++
		}
		insSize += inBaseSize + scriptSize
	}

	// value
	outBaseSize := 8
	outsSize := 0
	auxCount = 0
	for _, scriptType := range outScriptTypes {
		scriptSize, ok := scriptPubKeySizeByScriptType[scriptType]
		if !ok {
			scriptSize = outAuxiliaryScriptSize[auxCount]
			auxCount++
		}
		outsSize += outBaseSize + scriptSize
	}

	// version + locktime
	return 8 +
		wire.VarIntSerializeSize(uint64(len(inScriptTypes))) +
		wire.VarIntSerializeSize(uint64(len(outScriptTypes))) +
		insSize + outsSize
}

func calcTxWitnessSize(inScriptTypes, inAuxiliaryWitnessSize []int) int {
	if !hasWitnessInput(inScriptTypes) {
		return 0
	}

	// marker + flag
	size := 2
	auxCount := 0
	for _, scriptType := range inScriptTypes {
		switch scriptType {
		case P2SH_P2WSH, P2WSH:
			size += inAuxiliaryWitnessSize[auxCount]
			auxCount++
		case P2TR:
			witnessSize := witnessSizeByScriptType[P2TR]
			if auxCount < len(inAuxiliaryWitnessSize) {
				if inAuxiliaryWitnessSize[auxCount] > 0 {
					witnessSize = inAuxiliaryWitnessSize[auxCount]
				}
				auxCount++
			}
			size += witnessSize
		default:
			witnessSize, ok := witnessSizeByScriptType[scriptType]
			if !ok {
				// empty witness stack of non-witness inputs
				witnessSize = 1
			}
			size += witnessSize
		}
	}
	return size
}

func hasWitnessInput(inScriptTypes []int) bool {
	for _, scriptType := range inScriptTypes {
		switch scriptType {
		case P2SH_P2WPKH, P2SH_P2WSH, P2WPKH, P2WSH, P2TR:
			return true
		}
	}
	return false
}
