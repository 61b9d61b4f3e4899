package vm

import (
	"encoding/binary"
	"fmt"

	"deadswitch/keys"
)

// ============================================
// 活跃 vault 序号索引
// v1_vseq              -> 下一个可用序号
// v1_vidx_{序号}        -> vault 地址
// v1_vidxof_{地址}      -> 序号
// 随同一批次提交，内存中的 bitmap 在提交成功后再更新
// ============================================

type indexChange struct {
	idx     uint64
	removed bool
}

func encodeU64(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("bad u64 encoding: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// indexWrites 根据写集里 vault 记录的新建 / 删除，生成索引写入
func indexWrites(read ReadThroughFn, ws []WriteOp) ([]WriteOp, []indexChange, error) {
	var (
		out       []WriteOp
		changes   []indexChange
		seq       uint64
		seqLoaded bool
	)
	for _, w := range ws {
		addr, ok := keys.VaultAddrFromKey(w.Key)
		if !ok {
			continue
		}
		prev, err := read(w.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", w.Key, err)
		}

		if w.Del {
			if prev == nil {
				continue
			}
			raw, err := read(keys.KeyVaultIndexOf(addr))
			if err != nil {
				return nil, nil, fmt.Errorf("read index of %s: %w", addr, err)
			}
			if raw == nil {
				continue
			}
			idx, err := decodeU64(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("index of %s: %w", addr, err)
			}
			out = append(out,
				WriteOp{Key: keys.KeyVaultIndex(idx), Del: true, Category: "index"},
				WriteOp{Key: keys.KeyVaultIndexOf(addr), Del: true, Category: "index"},
			)
			changes = append(changes, indexChange{idx: idx, removed: true})
			continue
		}

		if prev != nil {
			continue // 已有记录的更新
		}
		if !seqLoaded {
			raw, err := read(keys.KeyVaultSeq())
			if err != nil {
				return nil, nil, fmt.Errorf("read vault seq: %w", err)
			}
			if raw != nil {
				if seq, err = decodeU64(raw); err != nil {
					return nil, nil, fmt.Errorf("vault seq: %w", err)
				}
			}
			seqLoaded = true
		}
		idx := seq
		seq++
		out = append(out,
			WriteOp{Key: keys.KeyVaultIndex(idx), Value: []byte(addr), Category: "index"},
			WriteOp{Key: keys.KeyVaultIndexOf(addr), Value: encodeU64(idx), Category: "index"},
		)
		changes = append(changes, indexChange{idx: idx})
	}
	if seqLoaded {
		out = append(out, WriteOp{Key: keys.KeyVaultSeq(), Value: encodeU64(seq), Category: "index"})
	}
	return out, changes, nil
}
