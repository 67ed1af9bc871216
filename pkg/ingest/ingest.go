// Package ingest is the thin seam between the core and external
// document/web ingestion collaborators: the core never parses a PDF, a
// DOCX, or a web page. It only accepts the (text_chunks, metadata) a
// collaborator has already produced and turns each chunk into a metastore
// row plus a MemoryItem.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/memory"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// ChunkInput is one unit a collaborator hands the core: a slice of
// extracted text plus whatever metadata it carries (page number, chunk
// index, source URL fragment, etc).
type ChunkInput struct {
	Content    string
	PageNumber *int // document chunks only; nil for web chunks
	Metadata   map[string]any
}

// Service accepts already-produced chunks from document/web ingestion
// collaborators and persists them through the metadata store and the
// memory service.
type Service struct {
	store  metastore.Store
	memory *memory.Service
}

// New builds an ingest.Service over the metadata store and memory service.
func New(store metastore.Store, mem *memory.Service) *Service {
	return &Service{store: store, memory: mem}
}

// RegisterDocument creates the Document row a collaborator will attach
// chunks to. filename/fileType/storagePath describe the original file the
// core never opens itself.
func (s *Service) RegisterDocument(ctx context.Context, filename, fileType, storagePath string, metadata map[string]any) (*model.Document, error) {
	now := time.Now()
	doc := &model.Document{
		ID:          kernel.NewID(),
		Filename:    filename,
		FileType:    fileType,
		StoragePath: storagePath,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    metadata,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// IngestDocumentChunks persists each chunk in order (chunk_index is its
// position in the slice, unique per parent) and stores one
// MemoryItem per chunk, category=document, source linked to the chunk.
// Marks the Document processed once every chunk has a MemoryItem.
func (s *Service) IngestDocumentChunks(ctx context.Context, documentID kernel.ID, chunks []ChunkInput) error {
	for i, c := range chunks {
		chunk := &model.DocumentChunk{
			ID:         kernel.NewID(),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    c.Content,
			PageNumber: c.PageNumber,
			CreatedAt:  time.Now(),
			Metadata:   c.Metadata,
		}
		if err := s.store.CreateDocumentChunk(ctx, chunk); err != nil {
			return fmt.Errorf("ingest document chunk %d: %w", i, err)
		}
		meta := map[string]any{"document_id": documentID.String(), "chunk_index": i}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		if _, err := s.memory.StoreMemory(ctx, c.Content, model.CategoryDocument, model.SourceTypeDocumentChunk, chunk.ID.String(), model.DefaultImportance, meta); err != nil {
			return fmt.Errorf("ingest document chunk %d: store memory: %w", i, err)
		}
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	doc.Processed = true
	doc.UpdatedAt = time.Now()
	return s.store.UpdateDocument(ctx, doc)
}

// RegisterWebPage creates the WebPage row a collaborator will attach
// chunks to.
func (s *Service) RegisterWebPage(ctx context.Context, url, title string, metadata map[string]any) (*model.WebPage, error) {
	now := time.Now()
	page := &model.WebPage{
		ID:           kernel.NewID(),
		URL:          url,
		Title:        title,
		LastAccessed: now,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     metadata,
	}
	if err := s.store.CreateWebPage(ctx, page); err != nil {
		return nil, err
	}
	return page, nil
}

// IngestWebContentChunks is IngestDocumentChunks' analogue for web
// pages (category=web).
func (s *Service) IngestWebContentChunks(ctx context.Context, webPageID kernel.ID, chunks []ChunkInput) error {
	for i, c := range chunks {
		chunk := &model.WebContentChunk{
			ID:         kernel.NewID(),
			WebPageID:  webPageID,
			ChunkIndex: i,
			Content:    c.Content,
			CreatedAt:  time.Now(),
			Metadata:   c.Metadata,
		}
		if err := s.store.CreateWebContentChunk(ctx, chunk); err != nil {
			return fmt.Errorf("ingest web content chunk %d: %w", i, err)
		}
		meta := map[string]any{"web_page_id": webPageID.String(), "chunk_index": i}
		for k, v := range c.Metadata {
			meta[k] = v
		}
		if _, err := s.memory.StoreMemory(ctx, c.Content, model.CategoryWeb, model.SourceTypeWebContentChunk, chunk.ID.String(), model.DefaultImportance, meta); err != nil {
			return fmt.Errorf("ingest web content chunk %d: store memory: %w", i, err)
		}
	}
	page, err := s.store.GetWebPage(ctx, webPageID)
	if err != nil {
		return err
	}
	page.Processed = true
	page.UpdatedAt = time.Now()
	return s.store.UpdateWebPage(ctx, page)
}
