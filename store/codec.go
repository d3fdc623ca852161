// Copyright 2014-2022 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// Codec encodes records to and from CBOR.
//
// Encoding is deterministic (RFC 8949 core deterministic encoding) so equal
// records always produce equal bytes and therefore equal ids.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec returns a Codec with deterministic encoding and strict decoding.
func NewCodec() (Codec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return Codec{}, errors.Wrap(err, "store: cbor encoder")
	}
	dec, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		return Codec{}, errors.Wrap(err, "store: cbor decoder")
	}
	return Codec{enc: enc, dec: dec}, nil
}

var defaultCodec = mustCodec()

func mustCodec() Codec {
	c, err := NewCodec()
	if err != nil {
		// The options above are constant, so this never happens.
		panic(err)
	}
	return c
}

// DefaultCodec returns the shared Codec.
func DefaultCodec() Codec {
	return defaultCodec
}

// Marshal encodes v.
func (c Codec) Marshal(v interface{}) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "store: cbor marshal")
	}
	return data, nil
}

// Unmarshal decodes data into v.
func (c Codec) Unmarshal(data []byte, v interface{}) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "store: cbor unmarshal")
	}
	return nil
}

// PutRecord encodes v and stores the result in s.
func PutRecord(s Store, c Codec, v interface{}) (ID, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return ID{}, err
	}
	return s.Put(data)
}

// GetRecord loads id from s and decodes it into v.
func GetRecord(s Store, c Codec, id ID, v interface{}) error {
	data, err := s.Get(id)
	if err != nil {
		return err
	}
	return errors.Wrapf(c.Unmarshal(data, v), "record %s", id)
}
