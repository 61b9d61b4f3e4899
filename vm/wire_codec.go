package vm

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"deadswitch/types"
)

// 回执和资产子账户用 protobuf 线格式手写编解码，字段号固定，未知字段跳过

var errTruncated = errors.New("truncated wire data")

// AssetAccount 字段号
const (
	assetFieldOwner   protowire.Number = 1
	assetFieldMint    protowire.Number = 2
	assetFieldAmount  protowire.Number = 3
	assetFieldDeposit protowire.Number = 4
)

// Receipt 字段号
const (
	rcFieldTxID       protowire.Number = 1
	rcFieldKind       protowire.Number = 2
	rcFieldCaller     protowire.Number = 3
	rcFieldVault      protowire.Number = 4
	rcFieldStatus     protowire.Number = 5
	rcFieldCode       protowire.Number = 6
	rcFieldError      protowire.Number = 7
	rcFieldTimestamp  protowire.Number = 8
	rcFieldLogs       protowire.Number = 9
	rcFieldWriteCount protowire.Number = 10
	rcFieldBountyPaid protowire.Number = 11
)

func EncodeAssetAccount(acc *AssetAccount) []byte {
	var b []byte
	b = protowire.AppendTag(b, assetFieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, acc.Owner[:])
	b = protowire.AppendTag(b, assetFieldMint, protowire.BytesType)
	b = protowire.AppendBytes(b, acc.Mint[:])
	b = protowire.AppendTag(b, assetFieldAmount, protowire.VarintType)
	b = protowire.AppendVarint(b, acc.Amount)
	b = protowire.AppendTag(b, assetFieldDeposit, protowire.VarintType)
	b = protowire.AppendVarint(b, acc.Deposit)
	return b
}

func DecodeAssetAccount(b []byte) (*AssetAccount, error) {
	acc := &AssetAccount{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == assetFieldOwner && typ == protowire.BytesType:
			return consumeAddress(b, &acc.Owner)
		case num == assetFieldMint && typ == protowire.BytesType:
			return consumeAddress(b, &acc.Mint)
		case num == assetFieldAmount && typ == protowire.VarintType:
			return consumeUvarint(b, &acc.Amount)
		case num == assetFieldDeposit && typ == protowire.VarintType:
			return consumeUvarint(b, &acc.Deposit)
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// EncodeReceipt 回执落库格式
func EncodeReceipt(rc *Receipt) []byte {
	var b []byte
	appendString := func(num protowire.Number, s string) {
		if s == "" {
			return
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	appendString(rcFieldTxID, rc.TxID)
	appendString(rcFieldKind, rc.Kind)
	b = protowire.AppendTag(b, rcFieldCaller, protowire.BytesType)
	b = protowire.AppendBytes(b, rc.Caller[:])
	b = protowire.AppendTag(b, rcFieldVault, protowire.BytesType)
	b = protowire.AppendBytes(b, rc.Vault[:])
	appendString(rcFieldStatus, rc.Status)
	appendString(rcFieldCode, rc.Code)
	appendString(rcFieldError, rc.Error)
	if rc.Timestamp != 0 {
		b = protowire.AppendTag(b, rcFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(rc.Timestamp))
	}
	for _, line := range rc.Logs {
		b = protowire.AppendTag(b, rcFieldLogs, protowire.BytesType)
		b = protowire.AppendString(b, line)
	}
	if rc.WriteCount != 0 {
		b = protowire.AppendTag(b, rcFieldWriteCount, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(rc.WriteCount))
	}
	if rc.BountyPaid != 0 {
		b = protowire.AppendTag(b, rcFieldBountyPaid, protowire.VarintType)
		b = protowire.AppendVarint(b, rc.BountyPaid)
	}
	return b
}

func DecodeReceipt(b []byte) (*Receipt, error) {
	rc := &Receipt{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			switch num {
			case rcFieldTxID:
				return consumeString(b, &rc.TxID)
			case rcFieldKind:
				return consumeString(b, &rc.Kind)
			case rcFieldCaller:
				return consumeAddress(b, &rc.Caller)
			case rcFieldVault:
				return consumeAddress(b, &rc.Vault)
			case rcFieldStatus:
				return consumeString(b, &rc.Status)
			case rcFieldCode:
				return consumeString(b, &rc.Code)
			case rcFieldError:
				return consumeString(b, &rc.Error)
			case rcFieldLogs:
				var line string
				n, err := consumeString(b, &line)
				if err == nil {
					rc.Logs = append(rc.Logs, line)
				}
				return n, err
			}
		}
		if typ == protowire.VarintType {
			switch num {
			case rcFieldTimestamp:
				v, n := protowire.ConsumeVarint(b)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				rc.Timestamp = protowire.DecodeZigZag(v)
				return n, nil
			case rcFieldWriteCount:
				var v uint64
				n, err := consumeUvarint(b, &v)
				rc.WriteCount = int(v)
				return n, err
			case rcFieldBountyPaid:
				return consumeUvarint(b, &rc.BountyPaid)
			}
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// walkFields 逐个字段回调，fn 返回 -1 表示不认识该字段，由这里跳过
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		used, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return protowire.ParseError(used)
			}
		}
		b = b[used:]
	}
	return nil
}

func consumeAddress(b []byte, dst *types.Address) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	if len(v) != types.AddressLength {
		return 0, fmt.Errorf("%w: address field has %d bytes", errTruncated, len(v))
	}
	copy(dst[:], v)
	return n, nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}

func consumeUvarint(b []byte, dst *uint64) (int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = v
	return n, nil
}
