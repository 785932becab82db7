package diff

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/docsmith/docsync/internal/models"
)

// HashVersion prefixes every digest. It must change whenever the
// canonicalization rule below changes, so hashes computed under an older rule
// are never mistaken for current ones.
const HashVersion = "v1"

// ComputeHash produces a stable fingerprint of a recipe's semantically
// relevant content: definition body, name, description and connection
// bindings, serialized in that fixed order. Fields the platform mutates on
// every run (counters, last-run timestamps) are not part of the digest.
func ComputeHash(r models.Recipe) string {
	var buf bytes.Buffer
	writeSection(&buf, "definition", canonicalDefinition(r.Definition))
	writeSection(&buf, "name", []byte(r.Name))
	writeSection(&buf, "description", []byte(r.Description))
	writeSection(&buf, "connections", []byte(strconv.Itoa(len(r.Connections))))
	for _, c := range r.Connections {
		writeSection(&buf, "connection", []byte(fmt.Sprintf("%s\x00%s\x00%d", c.Name, c.Provider, c.AccountID)))
	}
	sum := sha256.Sum256(buf.Bytes())
	return HashVersion + ":" + hex.EncodeToString(sum[:])
}

// writeSection frames a field so adjacent sections can never be confused for
// one another regardless of content.
func writeSection(buf *bytes.Buffer, name string, payload []byte) {
	fmt.Fprintf(buf, "%s:%d:", name, len(payload))
	buf.Write(payload)
	buf.WriteByte('\n')
}

// canonicalDefinition re-encodes a definition with recursively sorted object
// keys so incidental key ordering in the source payload never perturbs the
// digest. An unparseable definition hashes as its raw bytes, which is still
// deterministic for a fixed payload.
func canonicalDefinition(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		b, _ := json.Marshal(val)
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, elem)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	default:
		b, _ := json.Marshal(val)
		buf.Write(b)
	}
}
