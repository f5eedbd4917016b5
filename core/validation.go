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

import (
	"fmt"
	"unicode/utf8"
)

// ValidateSourceDocument validates an extracted document.
//
// Validation rules:
//   - ID must not be empty
//   - Text must contain at least minTextLen characters (and at least one)
//   - Date must be set
//
// NOT validated:
//   - PersistFields (may be empty)
//   - Source (only consulted by same-index ingest)
func ValidateSourceDocument(doc *SourceDocument, minTextLen int) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrEmptyDocumentID)
	}
	if doc.ID == "" {
		return ErrEmptyDocumentID
	}
	if minTextLen < 1 {
		minTextLen = 1
	}
	if n := utf8.RuneCountInString(doc.Text); n < minTextLen {
		return fmt.Errorf("%w: %d characters, need %d", ErrTextTooShort, n, minTextLen)
	}
	if doc.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// ValidateInterval checks that an interval is non-empty.
func ValidateInterval(interval DateInterval) error {
	if !interval.End.After(interval.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	return nil
}
