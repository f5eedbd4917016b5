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


package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/annotit/core"
)

// Index names and document ids are separated by a NUL byte so that an index
// name can never be a prefix of another index's keys.
const (
	docPrefix   = "doc:"
	datePrefix  = "docdt:"
	termPrefix  = "doctm:"
	indexPrefix = "idx:"
	separator   = "\x00"
)

// makeDocKey generates a key for a document.
// Format: prefix index NUL id
func makeDocKey(index, id string) []byte {
	return []byte(docPrefix + index + separator + id)
}

// makeDocPrefix generates the prefix shared by all documents of an index.
func makeDocPrefix(index string) []byte {
	return []byte(docPrefix + index + separator)
}

// makeDatePrefix generates the prefix shared by all date index keys of an index.
func makeDatePrefix(index string) []byte {
	return []byte(datePrefix + index + separator)
}

// makeDateKey generates a composite key for the date index.
// Format: prefix index NUL timestamp id
func makeDateKey(index string, timestamp time.Time, id string) []byte {
	return append(makePartialDateKey(index, timestamp), id...)
}

// makePartialDateKey generates a partial key for date range queries.
// Format: prefix index NUL timestamp
func makePartialDateKey(index string, timestamp time.Time) []byte {
	prefix := makeDatePrefix(index)
	buf := make([]byte, len(prefix)+8, len(prefix)+8+32)
	offset := copy(buf, prefix)
	// BigEndian with the sign bit flipped so pre-epoch dates sort first
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro())^(1<<63))
	return buf
}

// dateKeyID extracts the document id from a date index key.
func dateKeyID(index string, key []byte) string {
	return string(key[len(makeDatePrefix(index))+8:])
}

// makeTermPrefix generates the prefix of all term keys for one field value.
// Format: prefix index NUL hash(field NUL value)
func makeTermPrefix(index, field, value string) []byte {
	prefix := termPrefix + index + separator
	buf := make([]byte, len(prefix)+8, len(prefix)+8+32)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(field+separator+value)))
	return buf
}

// makeTermKey generates a term index key for a document.
// Format: prefix index NUL hash(field NUL value) id
func makeTermKey(index, field, value, id string) []byte {
	return append(makeTermPrefix(index, field, value), id...)
}

// makeIndexKey generates the key recording that an index exists.
func makeIndexKey(index string) []byte {
	return []byte(indexPrefix + index)
}
