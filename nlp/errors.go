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


package nlp

import "errors"

var (
	// ErrInvalidMaxAttempts is returned by RetryWithBackoff when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrUnexpectedStatus is returned when the service answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status from annotation service")

	// ErrEmptyResponse is returned when the service answers with an empty body.
	ErrEmptyResponse = errors.New("empty response from annotation service")

	// ErrMalformedResponse is returned when the response envelope cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response from annotation service")

	// ErrUnknownDialect is returned for an unsupported endpoint request mode.
	ErrUnknownDialect = errors.New("unknown endpoint request mode")
)
