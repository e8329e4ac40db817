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


// Package search provides filtered search over a bank.
//
// The Searcher type narrows the corpus before ranking:
//   - Metadata filters (owner, cluster, source type, skill level, ingest date range)
//   - Cosine ranking of the remaining documents by the bank
//   - Grouping of hits by cluster, with full content or a bounded snippet
//
// Hits whose text contains every non-stop-word of the query are flagged as
// verbatim matches.
package search
