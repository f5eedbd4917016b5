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


package core

import "errors"

// Pipeline error taxonomy
var (
	// ErrConfiguration indicates invalid or contradictory settings.
	// It is fatal and reported before any interval runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrAnnotationService indicates the NLP service call failed after all retries.
	ErrAnnotationService = errors.New("annotation service error")

	// ErrStoreIO indicates a read or write against a document store failed.
	ErrStoreIO = errors.New("store i/o error")

	// ErrMapping indicates an annotation payload could not be turned into sink records.
	ErrMapping = errors.New("mapping error")
)

// Domain validation errors
var (
	// ErrEmptyDocumentID indicates a source document has no identifier.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrTextTooShort indicates a source document's text is empty or below the minimum length.
	ErrTextTooShort = errors.New("document text too short")

	// ErrMissingDate indicates a source document has no usable date.
	ErrMissingDate = errors.New("document date missing")

	// ErrInvalidInterval indicates a date interval is empty or inverted.
	ErrInvalidInterval = errors.New("invalid date interval")
)
