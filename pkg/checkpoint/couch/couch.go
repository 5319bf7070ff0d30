// Package couch implements checkpoint.Manager over a CouchDB database,
// grounded on the teacher's db.CouchDBService connect/DBExists/CreateDB
// and Put/Get/ScanDoc document idiom.
package couch

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
)

const mainAccessDoc = "main_access"

type mainAccessDocument struct {
	ID       string          `json:"_id"`
	Rev      string          `json:"_rev,omitempty"`
	Renamings map[string]bool `json:"renamings"`
}

type taskDocument struct {
	checkpoint.TaskRecord
	ID  string `json:"_id"`
	Rev string `json:"_rev,omitempty"`
}

func taskDocId(taskId int64) string { return fmt.Sprintf("task:%d", taskId) }

type Manager struct {
	client *kivik.Client
	db     *kivik.DB
}

func Open(ctx context.Context, url, database string) (*Manager, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, fmt.Errorf("couch checkpoint: connect %s: %w", url, err)
	}
	exists, err := client.DBExists(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("couch checkpoint: check database %s: %w", database, err)
	}
	if !exists {
		if err := client.CreateDB(ctx, database); err != nil {
			return nil, fmt.Errorf("couch checkpoint: create database %s: %w", database, err)
		}
	}
	return &Manager{client: client, db: client.DB(database)}, nil
}

func (m *Manager) getTask(ctx context.Context, taskId int64) (taskDocument, error) {
	var doc taskDocument
	row := m.db.Get(ctx, taskDocId(taskId))
	if row.Err() != nil {
		return doc, fmt.Errorf("couch checkpoint: get task %d: %w", taskId, row.Err())
	}
	if err := row.ScanDoc(&doc); err != nil {
		return doc, fmt.Errorf("couch checkpoint: decode task %d: %w", taskId, err)
	}
	return doc, nil
}

func (m *Manager) NewTask(rec checkpoint.TaskRecord) error {
	ctx := context.Background()
	doc := taskDocument{TaskRecord: rec, ID: taskDocId(rec.TaskId)}
	if existing, err := m.getTask(ctx, rec.TaskId); err == nil {
		doc.Rev = existing.Rev
	}
	_, err := m.db.Put(ctx, doc.ID, doc)
	if err != nil {
		return fmt.Errorf("couch checkpoint: put task %d: %w", rec.TaskId, err)
	}
	return nil
}

func (m *Manager) EndTask(taskId int64, renamings []string) error {
	ctx := context.Background()
	doc, err := m.getTask(ctx, taskId)
	if err != nil {
		return err
	}
	doc.State = "FINISHED"
	doc.Renamings = renamings
	_, err = m.db.Put(ctx, doc.ID, doc)
	if err != nil {
		return fmt.Errorf("couch checkpoint: update task %d: %w", taskId, err)
	}
	return nil
}

func (m *Manager) getMainAccess(ctx context.Context) (mainAccessDocument, error) {
	doc := mainAccessDocument{ID: mainAccessDoc, Renamings: map[string]bool{}}
	row := m.db.Get(ctx, mainAccessDoc)
	if row.Err() != nil {
		if kivik.HTTPStatus(row.Err()) == 404 {
			return doc, nil
		}
		return doc, fmt.Errorf("couch checkpoint: get main access doc: %w", row.Err())
	}
	if err := row.ScanDoc(&doc); err != nil {
		return doc, fmt.Errorf("couch checkpoint: decode main access doc: %w", err)
	}
	if doc.Renamings == nil {
		doc.Renamings = map[string]bool{}
	}
	return doc, nil
}

func (m *Manager) MainAccess(renaming string) error {
	ctx := context.Background()
	doc, err := m.getMainAccess(ctx)
	if err != nil {
		return err
	}
	doc.Renamings[renaming] = true
	_, err = m.db.Put(ctx, mainAccessDoc, doc)
	if err != nil {
		return fmt.Errorf("couch checkpoint: put main access doc: %w", err)
	}
	return nil
}

func (m *Manager) DeletedData(renaming string) error {
	ctx := context.Background()
	doc, err := m.getMainAccess(ctx)
	if err != nil {
		return err
	}
	delete(doc.Renamings, renaming)
	_, err = m.db.Put(ctx, mainAccessDoc, doc)
	if err != nil {
		return fmt.Errorf("couch checkpoint: put main access doc: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	return m.client.Close()
}
