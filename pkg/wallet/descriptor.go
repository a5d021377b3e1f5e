package wallet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	descriptorInputCharset = "0123456789()[],'/*abcdefgh@:$%{}" +
		"IJKLMNOPQRSTUVWXYZ&+-.;<=>?!^_|~" +
		"ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	descriptorChecksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

var descriptorGenerator = [5]uint64{
	0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a, 0x644d626ffd,
}

// DescriptorOpts is the struct given to Descriptor.
type DescriptorOpts struct {
	MasterFingerprint uint32
	AccountPath       DerivationPath
	AccountXPub       string
	AddressType       AddressType
	Change            uint32
}

func (o DescriptorOpts) validate() error {
	if len(o.AccountPath) <= 0 {
		return ErrNullDerivationPath
	}
	if len(o.AccountXPub) <= 0 {
		return fmt.Errorf("account xpub must not be null")
	}
	if _, err := o.AddressType.Purpose(); err != nil {
		return err
	}
	return nil
}

// Descriptor renders the output descriptor, with checksum, covering every
// address of one branch of an account.
func Descriptor(opts DescriptorOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	fp := make([]byte, 4)
	binary.LittleEndian.PutUint32(fp, opts.MasterFingerprint)
	origin := strings.TrimPrefix(opts.AccountPath.String(), "m")

	key := fmt.Sprintf(
		"[%s%s]%s/%d/*",
		hex.EncodeToString(fp), origin, opts.AccountXPub, opts.Change,
	)

	var desc string
	switch opts.AddressType {
	case Legacy:
		desc = fmt.Sprintf("pkh(%s)", key)
	case NestedSegwit:
		desc = fmt.Sprintf("sh(wpkh(%s))", key)
	case NativeSegwit:
		desc = fmt.Sprintf("wpkh(%s)", key)
	case Taproot:
		desc = fmt.Sprintf("tr(%s)", key)
	}

	return AddDescriptorChecksum(desc)
}

// AddDescriptorChecksum appends the 8-character checksum to the descriptor.
func AddDescriptorChecksum(desc string) (string, error) {
	checksum, err := descriptorChecksum(desc)
	if err != nil {
		return "", err
	}
	return desc + "#" + checksum, nil
}

func descriptorChecksum(desc string) (string, error) {
	symbols := make([]uint64, 0, len(desc)+len(desc)/3+8)
	groups := make([]uint64, 0, 3)
	for _, c := range desc {
		pos := strings.IndexRune(descriptorInputCharset, c)
		if pos < 0 {
			return "", fmt.Errorf("invalid descriptor character %q", c)
		}
		symbols = append(symbols, uint64(pos)&31)
		groups = append(groups, uint64(pos)>>5)
		if len(groups) == 3 {
			symbols = append(symbols, groups[0]*9+groups[1]*3+groups[2])
			groups = groups[:0]
		}
	}
	switch len(groups) {
	case 1:
		symbols = append(symbols, groups[0])
	case 2:
		symbols = append(symbols, groups[0]*3+groups[1])
	}
	symbols = append(symbols, 0, 0, 0, 0, 0, 0, 0, 0)

	sum := descriptorPolymod(symbols) ^ 1

	checksum := make([]byte, 8)
	for i := range checksum {
		checksum[i] = descriptorChecksumCharset[(sum>>(5*(7-uint(i))))&31]
	}
	return string(checksum), nil
}

func descriptorPolymod(symbols []uint64) uint64 {
	chk := uint64(1)
	for _, value := range symbols {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ value
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= descriptorGenerator[i]
			}
		}
	}
	return chk
}
