package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.CheckQuotaActivity)
	w.RegisterActivity(a.CheckDuplicateActivity)
	w.RegisterActivity(a.AdmitDocumentActivity)
	w.RegisterActivity(a.FetchContentActivity)
	w.RegisterActivity(a.UpsertDocumentActivity)
	w.RegisterActivity(a.ChunkTextActivity)
	w.RegisterActivity(a.DiffChunksActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.CommitChunksActivity)
	w.RegisterActivity(a.MarkProcessedActivity)
	w.RegisterActivity(a.LinkCollectionsActivity)
	w.RegisterActivity(a.DeleteDocumentActivity)
	w.RegisterActivity(a.MarkDocumentFailedActivity)
	w.RegisterActivity(a.DiscardStagedEmbeddingsActivity)
	w.RegisterActivity(a.ListWorkspacePagesActivity)
	w.RegisterActivity(a.ExtractWorkspacePagesActivity)
}
