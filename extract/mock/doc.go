// Package mock provides a test double for extract.ConceptExtractor.
package mock
