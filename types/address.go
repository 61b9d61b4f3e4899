package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/sha3"
)

// AddressLength 地址长度（字节）
const AddressLength = 32

const (
	// MaxSeeds 单次派生允许的种子个数
	MaxSeeds = 16
	// MaxSeedLength 单个种子的最大长度
	MaxSeedLength = 32

	// VaultSeedPrefix vault 派生地址的第一个种子
	VaultSeedPrefix = "vault"

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrMaxSeedLength   = errors.New("seed exceeds maximum length")
	ErrTooManySeeds    = errors.New("too many seeds")
	ErrOnCurve         = errors.New("derived address lies on the curve")
	ErrNoViableBump    = errors.New("unable to find a viable program address bump")
	ErrAddressMismatch = errors.New("derived address mismatch")
)

// ProgramID 派生 vault 地址时绑定的程序标识
var ProgramID = MustParseAddress("HnFEhMS84CabpztHCDdGGN8798NxNse7NtXW4aG17XpB")

// Address 32 字节身份/账户地址，文本形式为 base58
type Address [AddressLength]byte

// ZeroAddress 全零地址
var ZeroAddress Address

func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero 是否为全零地址
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes 返回副本
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress 解析 base58 地址
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw := base58.Decode(s)
	if len(raw) != AddressLength {
		return a, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress 解析失败直接 panic，仅用于常量
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes 从 32 字节切片构造地址
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// LabelAddress 用标签生成确定性地址（开发网 / 测试用身份）
func LabelAddress(label string) Address {
	var a Address
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("deadswitch-label:"))
	h.Write([]byte(label))
	copy(a[:], h.Sum(nil))
	return a
}

// ============================================
// 程序派生地址
// 地址 = keccak256(seeds..., programID, marker)，且必须不是 secp256k1
// 曲线上的合法 x 坐标，这样就不存在对应私钥，只有持有记录的程序能动用其资金。
// ============================================

// IsOnCurve 判断 32 字节是否为 secp256k1 上某点的 x 坐标
func IsOnCurve(a Address) bool {
	var buf [33]byte
	buf[0] = 0x02
	copy(buf[1:], a[:])
	_, err := btcec.ParsePubKey(buf[:])
	return err == nil
}

// CreateProgramAddress 按给定种子计算派生地址，落在曲线上则返回 ErrOnCurve
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	var out Address
	if len(seeds) > MaxSeeds {
		return out, ErrTooManySeeds
	}
	h := sha3.NewLegacyKeccak256()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return out, ErrMaxSeedLength
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out) {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress 从 bump=255 往下找第一个不在曲线上的地址
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if len(seeds)+1 > MaxSeeds {
		return Address{}, 0, ErrTooManySeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// VaultSeeds vault 派生种子：("vault", owner, seed 小端)
func VaultSeeds(owner Address, seed uint64) [][]byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	return [][]byte{[]byte(VaultSeedPrefix), owner[:], le[:]}
}

// DeriveVaultAddress 派生 (owner, seed) 对应的 vault 地址和 bump
func DeriveVaultAddress(owner Address, seed uint64) (Address, uint8, error) {
	return FindProgramAddress(VaultSeeds(owner, seed), ProgramID)
}

// VerifyVaultAddress 用存储的 bump 重新派生并比对
func VerifyVaultAddress(addr, owner Address, seed uint64, bump uint8) error {
	seeds := append(VaultSeeds(owner, seed), []byte{bump})
	derived, err := CreateProgramAddress(seeds, ProgramID)
	if err != nil {
		return err
	}
	if derived != addr {
		return ErrAddressMismatch
	}
	return nil
}
