package rag

import "errors"

// ErrRetrievalUnavailable indicates the vector store or embedding model could
// not serve a retrieval call (unreachable, error, or timeout). Retrieval is
// not retried internally; callers decide retry policy.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")
