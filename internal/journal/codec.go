package journal

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"

	"eventcat/internal/catalog"
)

// Map keys are sorted so equal records always encode to equal bytes.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeRecord(r catalog.Record) ([]byte, error) {
	return codec.Marshal(r)
}

func decodeRecord(data []byte) (catalog.Record, error) {
	var r catalog.Record
	err := codec.Unmarshal(data, &r)
	return r, err
}

func fingerprint(data []byte) uint64 { return xxh3.Hash(data) }

func aliasNames(r catalog.Record) []string {
	out := make([]string, 0, len(r.Aliases)+1)
	out = append(out, r.Name)
	for _, a := range r.Aliases {
		if a.Value != "" && a.Value != r.Name {
			out = append(out, a.Value)
		}
	}
	return out
}
