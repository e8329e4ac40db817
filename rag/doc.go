// Package rag exposes a bank as a langchaingo retriever so that
// retrieval-augmented generation chains can pull context from it.
package rag
