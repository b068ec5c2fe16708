// Package remote reads records from hierarchical content services that are
// only reachable through RPC. Folders are enumerated depth first from a
// root, then every item of every folder is fetched with one or more calls.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/BartekS5/cmigrate/internal/output"
	"github.com/BartekS5/cmigrate/internal/rpc"
	"github.com/BartekS5/cmigrate/internal/source"
)

// Caller is the part of *rpc.Client the source needs.
type Caller interface {
	Call(ctx context.Context, name, method string, params ...rpc.Param) (*etree.Document, error)
}

// Folder is one node of the enumerated tree.
type Folder struct {
	ID   string
	Path string
}

type Source struct {
	source.Set

	client   Caller
	cfg      Config
	filter   func(source.Record) bool
	reporter *output.Reporter
	folders  []Folder
	ns       string
}

type Option func(*Source)

// WithFilter rejects records after the base fetch. Rejected records do not
// count toward the window.
func WithFilter(fn func(source.Record) bool) Option {
	return func(s *Source) { s.filter = fn }
}

func WithReporter(r *output.Reporter) Option {
	return func(s *Source) { s.reporter = r }
}

// WithCacheNamespace prefixes every cache name the source asks for, so
// sources sharing one caching client keep their responses apart.
func WithCacheNamespace(ns string) Option {
	return func(s *Source) { s.ns = ns }
}

func New(client Caller, cfg Config, opts ...Option) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Source{client: client, cfg: cfg, reporter: output.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Folders is the tree order found by the latest Init.
func (s *Source) Folders() []Folder {
	return s.folders
}

func (s *Source) Init(ctx context.Context, w source.Window) (int, error) {
	s.Load(nil)
	s.folders = nil

	if len(w.IDs) > 0 {
		for _, id := range w.IDs {
			rec, ok, err := s.item(ctx, Folder{}, id)
			if err != nil {
				return 0, err
			}
			if !ok || !s.accept(rec) {
				continue
			}
			if err := s.collect(ctx, id, rec); err != nil {
				return 0, err
			}
		}
		return s.Count(), nil
	}

	if err := s.walk(ctx, s.cfg.Root, s.cfg.RootName, map[string]bool{}); err != nil {
		return 0, err
	}
	s.reporter.Debug("%s: %d folders", s.cfg.Root, len(s.folders))

	accepted := 0
	end := w.End()
	for _, folder := range s.folders {
		if end >= 0 && accepted >= end {
			break
		}
		ids, err := s.list(ctx, folder)
		if err != nil {
			return 0, err
		}
		for _, id := range ids {
			if end >= 0 && accepted >= end {
				break
			}
			rec, ok, err := s.item(ctx, folder, id)
			if err != nil {
				return 0, err
			}
			if !ok || !s.accept(rec) {
				continue
			}
			index := accepted
			accepted++
			if index < w.Offset {
				continue
			}
			if err := s.collect(ctx, id, rec); err != nil {
				return 0, err
			}
		}
	}
	return s.Count(), nil
}

func (s *Source) call(ctx context.Context, name, method string, params ...rpc.Param) (*etree.Document, error) {
	if s.ns != "" {
		name = s.ns + "_" + name
	}
	return s.client.Call(ctx, name, method, params...)
}

// walk appends id and its descendants in pre-order. visited stops cycles.
func (s *Source) walk(ctx context.Context, id, path string, visited map[string]bool) error {
	if visited[id] {
		return nil
	}
	visited[id] = true
	s.folders = append(s.folders, Folder{ID: id, Path: path})

	doc, err := s.call(ctx, "folder_"+id, s.cfg.FolderMethod, rpc.Param{Name: s.cfg.FolderParam, Value: id})
	if err != nil {
		return fmt.Errorf("enumerate folder %s: %w", id, err)
	}
	for _, child := range doc.Root().FindElements(s.cfg.FolderPath) {
		childID := child.SelectAttrValue(s.cfg.FolderIDAttr, "")
		if childID == "" {
			continue
		}
		name := child.SelectAttrValue(s.cfg.FolderNameAttr, childID)
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		if err := s.walk(ctx, childID, childPath, visited); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) list(ctx context.Context, folder Folder) ([]string, error) {
	doc, err := s.call(ctx, "list_"+folder.ID, s.cfg.ListMethod, rpc.Param{Name: s.cfg.ListParam, Value: folder.ID})
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folder.ID, err)
	}
	var ids []string
	for _, item := range doc.Root().FindElements(s.cfg.ItemPath) {
		id := item.SelectAttrValue(s.cfg.ItemIDAttr, "")
		if id == "" {
			id = strings.TrimSpace(item.Text())
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// item runs the base fetch. A record level failure is reported and yields
// ok == false; only an unreachable endpoint is returned as an error.
func (s *Source) item(ctx context.Context, folder Folder, id string) (source.Record, bool, error) {
	rec := source.Record{s.cfg.KeyField: id}
	if folder.ID != "" {
		rec[s.cfg.FolderField] = folder.Path
	}
	if err := s.fetch(ctx, s.cfg.Fetches[0], id, rec); err != nil {
		if errors.Is(err, rpc.ErrUnreachable) {
			return nil, false, fmt.Errorf("item %s: %w", id, err)
		}
		s.reporter.Error("item %s: %s: %v", id, s.cfg.Fetches[0].Name, err)
		return nil, false, nil
	}
	return rec, true, nil
}

func (s *Source) accept(rec source.Record) bool {
	for field, value := range s.cfg.SkipWhen {
		if v, ok := rec.Key(field); ok && v == value {
			return false
		}
	}
	return s.filter == nil || s.filter(rec)
}

// collect runs the remaining fetches and keeps rec unless a required one
// failed. Only an unreachable endpoint is returned as an error.
func (s *Source) collect(ctx context.Context, id string, rec source.Record) error {
	for _, f := range s.cfg.Fetches[1:] {
		err := s.fetch(ctx, f, id, rec)
		switch {
		case err == nil:
			continue
		case errors.Is(err, rpc.ErrUnreachable):
			return fmt.Errorf("item %s: %s: %w", id, f.Name, err)
		case f.Optional:
			s.reporter.Warn("item %s: %s: %v", id, f.Name, err)
		default:
			s.reporter.Error("item %s: %s: %v", id, f.Name, err)
			return nil
		}
	}
	s.Append(rec)
	return nil
}

func (s *Source) fetch(ctx context.Context, f Fetch, id string, rec source.Record) error {
	doc, err := s.call(ctx, f.Name+"_"+id, f.Method, rpc.Param{Name: f.IDParam, Value: id})
	if err != nil {
		return err
	}
	el := doc.Root()
	if f.Record != "" {
		if el = el.FindElement(f.Record); el == nil {
			return fmt.Errorf("no %s element in response", f.Record)
		}
	}
	return extract(el, f.Fields, rec)
}
