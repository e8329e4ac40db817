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


// Package extract defines the concept-extraction collaborator used during
// ingestion.
//
// A ConceptExtractor reads document text and reports the concepts it
// mentions, an estimated skill level, a primary topic and a suggested
// cluster name. The bank uses that result only as a clustering signal, so
// extractors may be as simple or as elaborate as the deployment needs.
//
// # Implementations
//
//   - KeywordExtractor: offline, frequency based, no external services
//   - extract/mock: test double with call counting and behavior injection
//
// Extractors backed by language models live outside this module. Their
// JSON replies can be decoded with ParseExtraction, which tolerates code
// fences and the key-quoting mistakes such models commonly make.
//
// # Failure handling
//
// Extraction failures never block ingestion. Callers fall back to
// core.FallbackExtraction, which files the document under the "General"
// cluster.
package extract
