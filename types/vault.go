package types

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MaxPayloadReferenceLen = 64
	MaxEncryptedKeyLen     = 128
	MaxNameLen             = 32

	// VaultSpace 持久化 vault 记录的固定大小（含 8 字节鉴别头）
	VaultSpace = 8 + // discriminator
		AddressLength + // owner
		AddressLength + // recipient
		4 + MaxPayloadReferenceLen +
		4 + MaxEncryptedKeyLen +
		8 + // time_interval
		8 + // last_check_in
		1 + // is_released
		8 + // seed
		1 + // bump
		1 + AddressLength + // delegate
		8 + // bounty
		4 + MaxNameLen +
		8 + // locked_native_amount
		1 + AddressLength + // asset_mint
		8 // locked_asset_amount
)

// VaultDiscriminator sha256("account:Vault") 前 8 字节
var VaultDiscriminator = func() [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("account:Vault"))
	copy(d[:], sum[:8])
	return d
}()

var (
	ErrBadDiscriminator = errors.New("vault: bad discriminator")
	ErrBadRecordSize    = errors.New("vault: bad record size")
	ErrFieldTooLong     = errors.New("vault: field exceeds maximum length")
	ErrBadTag           = errors.New("vault: invalid option or bool tag")
)

// Vault 一个 dead man's switch 记录
type Vault struct {
	Owner              Address  `json:"owner"`
	Recipient          Address  `json:"recipient"`
	PayloadReference   string   `json:"payload_reference"`
	EncryptedKey       string   `json:"encrypted_key"`
	TimeInterval       int64    `json:"time_interval"`
	LastCheckIn        int64    `json:"last_check_in"`
	IsReleased         bool     `json:"is_released"`
	Seed               uint64   `json:"seed"`
	Bump               uint8    `json:"bump"`
	Delegate           *Address `json:"delegate,omitempty"`
	Bounty             uint64   `json:"bounty"`
	Name               string   `json:"name"`
	LockedNativeAmount uint64   `json:"locked_native_amount"`
	AssetMint          *Address `json:"asset_mint,omitempty"`
	LockedAssetAmount  uint64   `json:"locked_asset_amount"`
}

// Clone 深拷贝（指针字段重新分配）
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	c := *v
	if v.Delegate != nil {
		d := *v.Delegate
		c.Delegate = &d
	}
	if v.AssetMint != nil {
		m := *v.AssetMint
		c.AssetMint = &m
	}
	return &c
}

// IsVaultRecord 只看鉴别头和长度，不做完整解码
func IsVaultRecord(data []byte) bool {
	if len(data) != VaultSpace {
		return false
	}
	return [8]byte(data[:8]) == VaultDiscriminator
}

// MarshalVault 编码成固定 VaultSpace 字节，未用部分补零
func MarshalVault(v *Vault) ([]byte, error) {
	if len(v.PayloadReference) > MaxPayloadReferenceLen {
		return nil, fmt.Errorf("%w: payload_reference %d > %d", ErrFieldTooLong, len(v.PayloadReference), MaxPayloadReferenceLen)
	}
	if len(v.EncryptedKey) > MaxEncryptedKeyLen {
		return nil, fmt.Errorf("%w: encrypted_key %d > %d", ErrFieldTooLong, len(v.EncryptedKey), MaxEncryptedKeyLen)
	}
	if len(v.Name) > MaxNameLen {
		return nil, fmt.Errorf("%w: name %d > %d", ErrFieldTooLong, len(v.Name), MaxNameLen)
	}

	w := &recordWriter{buf: make([]byte, VaultSpace)}
	w.bytes(VaultDiscriminator[:])
	w.bytes(v.Owner[:])
	w.bytes(v.Recipient[:])
	w.str(v.PayloadReference, MaxPayloadReferenceLen)
	w.str(v.EncryptedKey, MaxEncryptedKeyLen)
	w.u64(uint64(v.TimeInterval))
	w.u64(uint64(v.LastCheckIn))
	w.flag(v.IsReleased)
	w.u64(v.Seed)
	w.u8(v.Bump)
	w.optAddr(v.Delegate)
	w.u64(v.Bounty)
	w.str(v.Name, MaxNameLen)
	w.u64(v.LockedNativeAmount)
	w.optAddr(v.AssetMint)
	w.u64(v.LockedAssetAmount)
	return w.buf, nil
}

// UnmarshalVault 严格解码：鉴别头、总长度、长度前缀、tag 都要合法
func UnmarshalVault(data []byte) (*Vault, error) {
	if len(data) != VaultSpace {
		return nil, fmt.Errorf("%w: got %d want %d", ErrBadRecordSize, len(data), VaultSpace)
	}
	if [8]byte(data[:8]) != VaultDiscriminator {
		return nil, ErrBadDiscriminator
	}
	r := &recordReader{buf: data, off: 8}
	v := &Vault{}
	r.addr(&v.Owner)
	r.addr(&v.Recipient)
	v.PayloadReference = r.str(MaxPayloadReferenceLen, "payload_reference")
	v.EncryptedKey = r.str(MaxEncryptedKeyLen, "encrypted_key")
	v.TimeInterval = int64(r.u64())
	v.LastCheckIn = int64(r.u64())
	v.IsReleased = r.flag()
	v.Seed = r.u64()
	v.Bump = r.u8()
	v.Delegate = r.optAddr()
	v.Bounty = r.u64()
	v.Name = r.str(MaxNameLen, "name")
	v.LockedNativeAmount = r.u64()
	v.AssetMint = r.optAddr()
	v.LockedAssetAmount = r.u64()
	if r.err != nil {
		return nil, r.err
	}
	return v, nil
}

// ---------- 定长编码辅助 ----------

type recordWriter struct {
	buf []byte
	off int
}

func (w *recordWriter) bytes(b []byte) {
	copy(w.buf[w.off:], b)
	w.off += len(b)
}

func (w *recordWriter) u8(b uint8) {
	w.buf[w.off] = b
	w.off++
}

func (w *recordWriter) flag(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *recordWriter) u64(x uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], x)
	w.off += 8
}

// str 写 4 字节长度 + 内容，占满 max 字节
func (w *recordWriter) str(s string, max int) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], uint32(len(s)))
	w.off += 4
	copy(w.buf[w.off:], s)
	w.off += max
}

func (w *recordWriter) optAddr(a *Address) {
	if a == nil {
		w.u8(0)
		w.off += AddressLength
		return
	}
	w.u8(1)
	w.bytes(a[:])
}

type recordReader struct {
	buf []byte
	off int
	err error
}

func (r *recordReader) u8() uint8 {
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *recordReader) flag() bool {
	b := r.u8()
	if b > 1 && r.err == nil {
		r.err = fmt.Errorf("%w: bool byte %d at offset %d", ErrBadTag, b, r.off-1)
	}
	return b == 1
}

func (r *recordReader) u64() uint64 {
	x := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return x
}

func (r *recordReader) addr(a *Address) {
	copy(a[:], r.buf[r.off:r.off+AddressLength])
	r.off += AddressLength
}

func (r *recordReader) str(max int, field string) string {
	n := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	start := r.off
	r.off += max
	if n > uint32(max) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: %s length prefix %d > %d", ErrFieldTooLong, field, n, max)
		}
		return ""
	}
	return string(r.buf[start : start+int(n)])
}

func (r *recordReader) optAddr() *Address {
	tag := r.u8()
	var a Address
	r.addr(&a)
	switch tag {
	case 0:
		return nil
	case 1:
		return &a
	}
	if r.err == nil {
		r.err = fmt.Errorf("%w: option tag %d", ErrBadTag, tag)
	}
	return nil
}
