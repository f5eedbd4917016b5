// Copyright 2025 Poiesic Systems
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


package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Envelope is the stored form of a document in key-value drivers. It keeps
// the indexed date next to the body so that stale index entries can be
// removed when a document is overwritten.
type Envelope struct {
	ID    string
	Dated bool
	Date  time.Time
	Body  map[string]any
}

// MarshalEnvelope serializes an envelope to bytes.
// The body is stored as JSON inside the binary frame.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	body, err := json.Marshal(env.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, env.ID, err)
	}
	var micros int64
	if env.Dated {
		micros = env.Date.UnixMicro()
	}
	bodyStr := string(body)

	size := ord.String.Size(env.ID) +
		ord.Bool.Size(env.Dated) +
		varint.Int64.Size(micros) +
		ord.String.Size(bodyStr)
	buf := make([]byte, size)
	n := ord.String.Marshal(env.ID, buf)
	n += ord.Bool.Marshal(env.Dated, buf[n:])
	n += varint.Int64.Marshal(micros, buf[n:])
	ord.String.Marshal(bodyStr, buf[n:])
	return buf, nil
}

// UnmarshalEnvelope deserializes an envelope from bytes.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	id, n, err := ord.String.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %w", ErrTruncatedData, err)
	}
	dated, n1, err := ord.Bool.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: dated flag: %w", ErrTruncatedData, err)
	}
	n += n1
	micros, n1, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: date: %w", ErrTruncatedData, err)
	}
	n += n1
	bodyStr, _, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrTruncatedData, err)
	}

	env := &Envelope{ID: id, Dated: dated}
	if dated {
		env.Date = time.UnixMicro(micros).UTC()
	}
	if err := json.Unmarshal([]byte(bodyStr), &env.Body); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerializationFailed, id, err)
	}
	return env, nil
}

// MarshalBody encodes a document body as JSON.
func MarshalBody(body map[string]any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalBody decodes a JSON document body.
func UnmarshalBody(data []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return body, nil
}

// NormalizeBody round-trips a body through JSON so that values have the
// types a decoded document would have (float64 numbers, []any lists).
func NormalizeBody(body map[string]any) (map[string]any, error) {
	data, err := MarshalBody(body)
	if err != nil {
		return nil, err
	}
	return UnmarshalBody(data)
}
