// Package ragdex embeds ragdex search in a Go program.
//
// The client serves queries from a directory of synced index artifacts
// (vectors.index, meta.json, manifest.json), the same directory "ragdex
// serve" and "ragdex sync" maintain. It reloads when the artifacts change
// and caches query embeddings.
//
//	client, _ := ragdex.Open(
//	    ragdex.WithArtifactsDir("/var/lib/ragdex/artifacts"),
//	    ragdex.WithEmbedder("text-embedding-3-small", myEmbedder),
//	)
//	hits, _ := client.Search(ctx, "how do I rotate credentials?", 5)
//	for _, h := range hits {
//	    fmt.Println(h.Score, h.SourcePath, h.ChunkID)
//	}
//
// The embedder must be the model the index was built with; loading an
// index built with another model fails with ErrModelMismatch.
package ragdex
