// Package bolt implements checkpoint.Manager over a local bbolt database,
// grounded on the teacher's db/bolt.DB bucket/PutJSON/GetJSON/Delete idiom.
package bolt

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/bsc-wdc/compss-core/pkg/checkpoint"
)

const (
	tasksBucket     = "tasks"
	mainAccessBucket = "main_access"
)

type Manager struct {
	db *bbolt.DB
}

func Open(path string) (*Manager, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt checkpoint: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tasksBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(mainAccessBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt checkpoint: create buckets: %w", err)
	}
	return &Manager{db: db}, nil
}

func (m *Manager) putTask(rec checkpoint.TaskRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bolt checkpoint: marshal task: %w", err)
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tasksBucket)).Put(taskKey(rec.TaskId), body)
	})
}

func taskKey(taskId int64) []byte {
	return []byte(fmt.Sprintf("task:%d", taskId))
}

func (m *Manager) NewTask(rec checkpoint.TaskRecord) error {
	return m.putTask(rec)
}

func (m *Manager) EndTask(taskId int64, renamings []string) error {
	var rec checkpoint.TaskRecord
	err := m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(tasksBucket)).Get(taskKey(taskId))
		if data == nil {
			return fmt.Errorf("bolt checkpoint: unknown task %d", taskId)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return err
	}
	rec.State = "FINISHED"
	rec.Renamings = renamings
	return m.putTask(rec)
}

func (m *Manager) MainAccess(renaming string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(mainAccessBucket)).Put([]byte(renaming), []byte("1"))
	})
}

func (m *Manager) DeletedData(renaming string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(mainAccessBucket)).Delete([]byte(renaming))
	})
}

func (m *Manager) Close() error {
	return m.db.Close()
}
