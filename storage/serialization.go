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
	"fmt"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/knowbank/core"
)

// DocumentRecord is the stored form of a document.
type DocumentRecord struct {
	ID          core.DocID
	Text        string
	Fingerprint uint64
}

// Serializers for the stored record types.
var (
	DocIDMUS          mus.Serializer[core.DocID]            = docIDSer{}
	ClusterIDMUS      mus.Serializer[core.ClusterID]        = clusterIDSer{}
	DocumentRecordMUS mus.Serializer[DocumentRecord]        = documentRecordSer{}
	ConceptMUS        mus.Serializer[core.Concept]          = conceptSer{}
	MetadataMUS       mus.Serializer[core.DocumentMetadata] = metadataSer{}
	ClusterMUS        mus.Serializer[core.Cluster]          = clusterSer{}
)

var (
	docIDSliceMUS   = ord.NewSliceSer[core.DocID](DocIDMUS)
	stringSliceMUS  = ord.NewSliceSer[string](ord.String)
	conceptSliceMUS = ord.NewSliceSer[core.Concept](ConceptMUS)
)

// docIDSer encodes DocID as a zig-zag varint.
type docIDSer struct{}

func (docIDSer) Marshal(v core.DocID, bs []byte) int { return varint.Int64.Marshal(int64(v), bs) }
func (docIDSer) Size(v core.DocID) int { return varint.Int64.Size(int64(v)) }
func (docIDSer) Skip(bs []byte) (int, error) { return varint.Int64.Skip(bs) }
func (docIDSer) Unmarshal(bs []byte) (core.DocID, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return core.DocID(v), n, err
}

// clusterIDSer encodes ClusterID as a zig-zag varint.
type clusterIDSer struct{}

func (clusterIDSer) Marshal(v core.ClusterID, bs []byte) int { return varint.Int64.Marshal(int64(v), bs) }
func (clusterIDSer) Size(v core.ClusterID) int { return varint.Int64.Size(int64(v)) }
func (clusterIDSer) Skip(bs []byte) (int, error) { return varint.Int64.Skip(bs) }
func (clusterIDSer) Unmarshal(bs []byte) (core.ClusterID, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return core.ClusterID(v), n, err
}

type documentRecordSer struct{}

func (documentRecordSer) Marshal(v DocumentRecord, bs []byte) (n int) {
	n = DocIDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Text, bs[n:])
	n += raw.Uint64.Marshal(v.Fingerprint, bs[n:])
	return
}

func (documentRecordSer) Unmarshal(bs []byte) (v DocumentRecord, n int, err error) {
	var n1 int
	if v.ID, n, err = DocIDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		n += n1
		return
	}
	n += n1
	v.Fingerprint, n1, err = raw.Uint64.Unmarshal(bs[n:])
	n += n1
	return
}

func (documentRecordSer) Size(v DocumentRecord) int {
	return DocIDMUS.Size(v.ID) + ord.String.Size(v.Text) + raw.Uint64.Size(v.Fingerprint)
}

func (s documentRecordSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type conceptSer struct{}

func (conceptSer) Marshal(v core.Concept, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += varint.Int.Marshal(int(v.Category), bs[n:])
	n += varint.Float64.Marshal(v.Confidence, bs[n:])
	return
}

func (conceptSer) Unmarshal(bs []byte) (v core.Concept, n int, err error) {
	var (
		n1       int
		category int
	)
	if v.Name, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	category, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Category = core.Category(category)
	v.Confidence, n1, err = varint.Float64.Unmarshal(bs[n:])
	n += n1
	return
}

func (conceptSer) Size(v core.Concept) int {
	return ord.String.Size(v.Name) + varint.Int.Size(int(v.Category)) + varint.Float64.Size(v.Confidence)
}

func (s conceptSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type metadataSer struct{}

func (metadataSer) Marshal(v core.DocumentMetadata, bs []byte) (n int) {
	n = DocIDMUS.Marshal(v.DocID, bs)
	n += ord.String.Marshal(v.Owner, bs[n:])
	n += ord.String.Marshal(v.SourceType, bs[n:])
	n += ord.String.Marshal(v.SourceURL, bs[n:])
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += conceptSliceMUS.Marshal(v.Concepts, bs[n:])
	n += varint.Int.Marshal(int(v.SkillLevel), bs[n:])
	n += ord.String.Marshal(v.PrimaryTopic, bs[n:])
	n += ClusterIDMUS.Marshal(v.ClusterID, bs[n:])
	n += raw.TimeUnixMicroUTC.Marshal(v.IngestedAt, bs[n:])
	n += varint.Int.Marshal(v.ContentLength, bs[n:])
	return
}

func (metadataSer) Unmarshal(bs []byte) (v core.DocumentMetadata, n int, err error) {
	var (
		n1    int
		skill int
	)
	steps := []func() error{
		func() (e error) { v.DocID, n1, e = DocIDMUS.Unmarshal(bs[n:]); return },
		func() (e error) { v.Owner, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.SourceType, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.SourceURL, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.Filename, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.Concepts, n1, e = conceptSliceMUS.Unmarshal(bs[n:]); return },
		func() (e error) { skill, n1, e = varint.Int.Unmarshal(bs[n:]); return },
		func() (e error) { v.PrimaryTopic, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.ClusterID, n1, e = ClusterIDMUS.Unmarshal(bs[n:]); return },
		func() (e error) { v.IngestedAt, n1, e = raw.TimeUnixMicroUTC.Unmarshal(bs[n:]); return },
		func() (e error) { v.ContentLength, n1, e = varint.Int.Unmarshal(bs[n:]); return },
	}
	for _, step := range steps {
		err = step()
		n += n1
		if err != nil {
			return
		}
	}
	v.SkillLevel = core.SkillLevel(skill)
	return
}

func (metadataSer) Size(v core.DocumentMetadata) int {
	return DocIDMUS.Size(v.DocID) +
		ord.String.Size(v.Owner) +
		ord.String.Size(v.SourceType) +
		ord.String.Size(v.SourceURL) +
		ord.String.Size(v.Filename) +
		conceptSliceMUS.Size(v.Concepts) +
		varint.Int.Size(int(v.SkillLevel)) +
		ord.String.Size(v.PrimaryTopic) +
		ClusterIDMUS.Size(v.ClusterID) +
		raw.TimeUnixMicroUTC.Size(v.IngestedAt) +
		varint.Int.Size(v.ContentLength)
}

func (s metadataSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type clusterSer struct{}

func (clusterSer) Marshal(v core.Cluster, bs []byte) (n int) {
	n = ClusterIDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += stringSliceMUS.Marshal(v.PrimaryConcepts, bs[n:])
	n += varint.Int.Marshal(int(v.SkillLevel), bs[n:])
	n += docIDSliceMUS.Marshal(v.DocIDs, bs[n:])
	n += varint.Int.Marshal(v.DocCount, bs[n:])
	return
}

func (clusterSer) Unmarshal(bs []byte) (v core.Cluster, n int, err error) {
	var (
		n1    int
		skill int
	)
	steps := []func() error{
		func() (e error) { v.ID, n1, e = ClusterIDMUS.Unmarshal(bs[n:]); return },
		func() (e error) { v.Name, n1, e = ord.String.Unmarshal(bs[n:]); return },
		func() (e error) { v.PrimaryConcepts, n1, e = stringSliceMUS.Unmarshal(bs[n:]); return },
		func() (e error) { skill, n1, e = varint.Int.Unmarshal(bs[n:]); return },
		func() (e error) { v.DocIDs, n1, e = docIDSliceMUS.Unmarshal(bs[n:]); return },
		func() (e error) { v.DocCount, n1, e = varint.Int.Unmarshal(bs[n:]); return },
	}
	for _, step := range steps {
		err = step()
		n += n1
		if err != nil {
			return
		}
	}
	v.SkillLevel = core.SkillLevel(skill)
	return
}

func (clusterSer) Size(v core.Cluster) int {
	return ClusterIDMUS.Size(v.ID) +
		ord.String.Size(v.Name) +
		stringSliceMUS.Size(v.PrimaryConcepts) +
		varint.Int.Size(int(v.SkillLevel)) +
		docIDSliceMUS.Size(v.DocIDs) +
		varint.Int.Size(v.DocCount)
}

func (s clusterSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// MarshalDocument serializes a document together with its fingerprint.
func MarshalDocument(doc core.StoredDocument) []byte {
	rec := DocumentRecord{ID: doc.ID, Text: doc.Text, Fingerprint: core.Fingerprint(doc.Text)}
	buf := make([]byte, DocumentRecordMUS.Size(rec))
	DocumentRecordMUS.Marshal(rec, buf)
	return buf
}

// UnmarshalDocument deserializes a document and checks its fingerprint.
func UnmarshalDocument(data []byte) (core.StoredDocument, error) {
	rec, _, err := DocumentRecordMUS.Unmarshal(data)
	if err != nil {
		return core.StoredDocument{}, fmt.Errorf("%w: document: %w", ErrSerializationFailed, err)
	}
	if core.Fingerprint(rec.Text) != rec.Fingerprint {
		return core.StoredDocument{}, fmt.Errorf("%w: document %d", ErrFingerprintMismatch, rec.ID)
	}
	return core.StoredDocument{ID: rec.ID, Text: rec.Text}, nil
}

// MarshalMetadata serializes document metadata.
func MarshalMetadata(md *core.DocumentMetadata) []byte {
	buf := make([]byte, MetadataMUS.Size(*md))
	MetadataMUS.Marshal(*md, buf)
	return buf
}

// UnmarshalMetadata deserializes document metadata.
func UnmarshalMetadata(data []byte) (*core.DocumentMetadata, error) {
	md, _, err := MetadataMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
	}
	return &md, nil
}

// MarshalCluster serializes a cluster.
func MarshalCluster(c *core.Cluster) []byte {
	buf := make([]byte, ClusterMUS.Size(*c))
	ClusterMUS.Marshal(*c, buf)
	return buf
}

// UnmarshalCluster deserializes a cluster.
func UnmarshalCluster(data []byte) (*core.Cluster, error) {
	c, _, err := ClusterMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster: %w", ErrSerializationFailed, err)
	}
	return &c, nil
}
