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


// Package storage provides the persistence abstraction for a knowledge bank.
//
// The bank itself is purely in memory. A Repository keeps the minimum needed
// to rebuild it: document texts keyed by id, document metadata and the
// cluster registry. Vectors and vocabulary statistics are never stored; on
// startup the documents are replayed in ascending id order, which rebuilds
// them deterministically.
//
// # Encoding
//
// Records are encoded with mus-go serializers defined in this package. Each
// stored document carries a BLAKE2b fingerprint of its text, checked on
// every read so that a corrupted record surfaces as ErrFingerprintMismatch
// instead of silently producing a different index.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the Repository
// interface:
//
//	repo, err := badger.NewRepository(backend)  // returns storage.Repository
//
// Test helpers such as badger.NewMemoryRepository also return the interface.
package storage
