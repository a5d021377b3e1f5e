package wallet

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// AddressType is the script template family of an address.
type AddressType int

const (
	// Legacy is pay-to-pubkey-hash.
	Legacy AddressType = iota
	// NestedSegwit is pay-to-witness-pubkey-hash wrapped in pay-to-script-hash.
	NestedSegwit
	// NativeSegwit is pay-to-witness-pubkey-hash.
	NativeSegwit
	// Taproot is a witness v1 output committing to a single key.
	Taproot
)

var (
	purposeByAddressType = map[AddressType]uint32{
		Legacy:       44,
		NestedSegwit: 49,
		NativeSegwit: 84,
		Taproot:      86,
	}
	nameByAddressType = map[AddressType]string{
		Legacy:       "legacy",
		NestedSegwit: "nested-segwit",
		NativeSegwit: "native-segwit",
		Taproot:      "taproot",
	}
)

// AddressTypes lists every supported address type.
func AddressTypes() []AddressType {
	return []AddressType{Legacy, NestedSegwit, NativeSegwit, Taproot}
}

// Purpose returns the BIP43 purpose level of the address type.
func (t AddressType) Purpose() (uint32, error) {
	purpose, ok := purposeByAddressType[t]
	if !ok {
		return 0, ErrInvalidAddressType
	}
	return purpose, nil
}

// ScriptType returns the estimation script type of the address type.
func (t AddressType) ScriptType() int {
	switch t {
	case Legacy:
		return P2PKH
	case NestedSegwit:
		return P2SH_P2WPKH
	case Taproot:
		return P2TR
	default:
		return P2WPKH
	}
}

func (t AddressType) String() string {
	if name, ok := nameByAddressType[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// ParseAddressType is the inverse of AddressType.String. The purpose number
// is accepted too.
func ParseAddressType(str string) (AddressType, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	for t, name := range nameByAddressType {
		if str == name || str == fmt.Sprintf("%d", purposeByAddressType[t]) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAddressType, str)
}

// AddressTypeForPurpose maps a BIP43 purpose to its address type.
func AddressTypeForPurpose(purpose uint32) (AddressType, error) {
	for t, p := range purposeByAddressType {
		if p == purpose {
			return t, nil
		}
	}
	return 0, ErrInvalidAddressType
}

// Address is the spendable output script of a derived key together with
// everything needed later to spend it.
type Address struct {
	Type           AddressType
	EncodedAddress string
	Script         []byte
	// RedeemScript is set for NestedSegwit only.
	RedeemScript []byte
	// InternalKey, OutputKey and MerkleRoot are set for Taproot only.
	// MerkleRoot is empty for key-path-only outputs.
	InternalKey *btcec.PublicKey
	OutputKey   *btcec.PublicKey
	MerkleRoot  []byte
	// Leaves lists the committed scripts of a Taproot output with a script
	// path, in the order given by the caller.
	Leaves []TapScriptLeaf
}

// TapScriptLeaf is a committed Taproot leaf along with the control block
// proving its inclusion in the output key.
type TapScriptLeaf struct {
	Script       []byte
	LeafHash     chainhash.Hash
	ControlBlock []byte
}

// AddressFor maps a public key to the output script and encoded address of
// the given type.
func AddressFor(
	pubkey *btcec.PublicKey, addrType AddressType, net *chaincfg.Params,
) (*Address, error) {
	if pubkey == nil {
		return nil, ErrNullPublicKey
	}
	if net == nil {
		return nil, ErrNullNetwork
	}

	pubkeyHash := btcutil.Hash160(pubkey.SerializeCompressed())

	var (
		addr         btcutil.Address
		redeemScript []byte
		outputKey    *btcec.PublicKey
		err          error
	)
	switch addrType {
	case Legacy:
		addr, err = btcutil.NewAddressPubKeyHash(pubkeyHash, net)
	case NativeSegwit:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, net)
	case NestedSegwit:
		var witnessAddr btcutil.Address
		witnessAddr, err = btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, net)
		if err != nil {
			return nil, err
		}
		if redeemScript, err = txscript.PayToAddrScript(witnessAddr); err != nil {
			return nil, err
		}
		addr, err = btcutil.NewAddressScriptHash(redeemScript, net)
	case Taproot:
		outputKey = txscript.ComputeTaprootKeyNoScript(pubkey)
		addr, err = btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(outputKey), net,
		)
	default:
		return nil, ErrInvalidAddressType
	}
	if err != nil {
		return nil, err
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	address := &Address{
		Type:           addrType,
		EncodedAddress: addr.EncodeAddress(),
		Script:         script,
		RedeemScript:   redeemScript,
	}
	if addrType == Taproot {
		address.InternalKey = pubkey
		address.OutputKey = outputKey
	}
	return address, nil
}

// TaprootAddressWithScripts returns a Taproot address whose output key
// commits to both the internal key and the Merkle root of the given leaf
// scripts, so that it can be spent either way.
func TaprootAddressWithScripts(
	internalKey *btcec.PublicKey, scripts [][]byte, net *chaincfg.Params,
) (*Address, error) {
	if internalKey == nil {
		return nil, ErrNullPublicKey
	}
	if net == nil {
		return nil, ErrNullNetwork
	}
	if len(scripts) <= 0 {
		return nil, ErrEmptyTapLeaves
	}

	leaves := make([]txscript.TapLeaf, 0, len(scripts))
	for _, script := range scripts {
		leaves = append(leaves, txscript.NewBaseTapLeaf(script))
	}
	tree := txscript.AssembleTaprootScriptTree(leaves...)
	rootHash := tree.RootNode.TapHash()

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, rootHash[:])
	addr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), net,
	)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	tapLeaves := make([]TapScriptLeaf, 0, len(leaves))
	for _, proof := range tree.LeafMerkleProofs {
		controlBlock := proof.ToControlBlock(internalKey)
		cb, err := controlBlock.ToBytes()
		if err != nil {
			return nil, err
		}
		tapLeaves = append(tapLeaves, TapScriptLeaf{
			Script:       proof.TapLeaf.Script,
			LeafHash:     proof.TapLeaf.TapHash(),
			ControlBlock: cb,
		})
	}

	return &Address{
		Type:           Taproot,
		EncodedAddress: addr.EncodeAddress(),
		Script:         script,
		InternalKey:    internalKey,
		OutputKey:      outputKey,
		MerkleRoot:     rootHash[:],
		Leaves:         tapLeaves,
	}, nil
}

// AddressTypeForScript detects which of the supported templates the output
// script follows.
func AddressTypeForScript(script []byte) (AddressType, error) {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyHashTy:
		return Legacy, nil
	case txscript.ScriptHashTy:
		return NestedSegwit, nil
	case txscript.WitnessV0PubKeyHashTy:
		return NativeSegwit, nil
	case txscript.WitnessV1TaprootTy:
		return Taproot, nil
	default:
		return 0, ErrInvalidAddressType
	}
}
