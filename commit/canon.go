package commit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

// hashCommit computes the SHA-256 hex digest of c's canonical form, every
// field except Hash itself.
func hashCommit(c Commit) (string, error) {
	hashless := c
	hashless.Hash = ""

	raw, err := json.Marshal(hashless)
	if err != nil {
		return "", cherrors.Wrap(cherrors.Internal, "", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", cherrors.Wrap(cherrors.Internal, "", err)
	}

	canon, err := canonicalize(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize serializes v with mapping keys sorted recursively, so two
// structurally identical values hash identically regardless of the
// original key encounter order.
func canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
