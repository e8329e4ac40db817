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

// Domain errors
var (
	// ErrInvalidInput indicates a caller supplied unusable arguments.
	// Rejected operations never mutate state.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyContent indicates document text is empty or blank.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidConcept indicates a Concept failed validation.
	ErrInvalidConcept = errors.New("invalid concept")

	// ErrEmptyConceptName indicates the concept Name field is empty.
	ErrEmptyConceptName = errors.New("concept name cannot be empty")

	// ErrInvalidConfidence indicates a confidence outside [0,1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrDocumentNotFound indicates an operation referenced an unknown document
	// where a benign no-op is not acceptable (e.g. reassignment).
	ErrDocumentNotFound = errors.New("document not found")

	// ErrClusterNotFound indicates an operation referenced an unknown cluster.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrIntegrityFault indicates a broken cluster membership invariant.
	// Faults are reported, never silently corrected.
	ErrIntegrityFault = errors.New("integrity fault")
)
