// Package rag implements quarry's retrieval core: embedding indexing,
// top-k retrieval, and deterministic context assembly.
//
// # Overview
//
// The package turns pre-chunked document text into a searchable vector index
// and, at query time, assembles the best-matching chunks into a
// citation-tagged context block for a downstream answer generator.
//
// # Architecture
//
//	Indexer (batch, per document)
//	     |
//	     +-- adaptive batch embedding (halve on resource exhaustion)
//	     +-- skip-existing by content hash
//	     +-- upsert into the pgvector store
//	     |
//	     v
//	Retriever (per query)
//	     |
//	     +-- query normalization + result cache
//	     +-- cosine top-k search with optional document filter
//	     +-- deterministic ordering (similarity desc, chunk id asc)
//	     |
//	     v
//	Assembler (per query)
//	     |
//	     +-- fixed context template with source tags
//	     +-- budget enforcement: full text, extractive summary, truncation
//	     +-- citation list for included sources only
//
// # Key Components
//
// Service: the explicitly constructed facade wiring Indexer, Retriever and
// Assembler together with two LRU result caches (candidate lists and
// assembled contexts live in separate key namespaces).
//
// # Thread Safety
//
// Retrieval and assembly support concurrent callers; the shared caches are
// mutex-guarded. Indexing runs batches sequentially to keep peak memory
// bounded and predictable.
package rag
