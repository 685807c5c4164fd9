// Package model contains domain models passed between layers.
//
// Records and rich-text features are lexicon unions keyed by "$type". They
// decode from DAG-CBOR (firehose blocks) and JSON (XRPC responses); a $type
// without a typed variant keeps its raw fields instead of failing.
package model

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cborDec decodes nested maps as map[string]any so raw fields stay JSON friendly.
var cborDec = mustDecMode()

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// CBOR returns the decode mode used for repo blocks.
func CBOR() cbor.DecMode {
	return cborDec
}

// typeOf reads the "$type" discriminator from raw fields.
func typeOf(fields map[string]any) string {
	t, _ := fields["$type"].(string)
	return t
}
