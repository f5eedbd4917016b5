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


package mapping

import "errors"

var (
	// ErrUnknownVariant is returned for an unsupported schema mapping variant.
	ErrUnknownVariant = errors.New("unknown schema mapping variant")

	// ErrModeMismatch is returned when the variant disagrees with the ingest flags.
	ErrModeMismatch = errors.New("schema mapping variant disagrees with ingest flags")

	// ErrMissingAnnotationID is returned when an entry lacks the annotation id field.
	ErrMissingAnnotationID = errors.New("annotation entry has no id")
)
