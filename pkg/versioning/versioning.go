package versioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/agenda-app/agenda/internal/utils"
	"github.com/agenda-app/agenda/pkg/event"
	log "github.com/sirupsen/logrus"
)

// Store is the part of event.Repository the engine works with.
type Store interface {
	StoreVersion(ctx context.Context, version event.Version) (event.Version, error)
	GetVersion(ctx context.Context, eventId int, versionId int) (event.Version, error)
	ListVersions(ctx context.Context, eventId int) ([]event.Version, error)
	UpdateEventFields(ctx context.Context, eventId int, fields event.Fields) (event.Event, error)
}

type Engine struct {
	clock utils.Clock
}

func NewEngine(clock utils.Clock) *Engine {
	return &Engine{clock: clock}
}

// Snapshot records the current state of e as a new version stamped with the acting user.
// It must run before e is changed and in the same transaction as the change.
func (en *Engine) Snapshot(ctx context.Context, store Store, e event.Event, actingUserId int) (event.Version, error) {
	version, err := store.StoreVersion(ctx, event.Version{
		EventId:   e.Id,
		Fields:    event.CopyFields(e.Fields),
		UpdatedBy: actingUserId,
		UpdatedAt: en.clock.Now(),
	})
	if err != nil {
		return event.Version{}, fmt.Errorf("failed to snapshot event %d: %w", e.Id, err)
	}
	log.Debugf("stored version %d of event %d", version.Id, e.Id)
	return version, nil
}

// Rollback snapshots the live state of e and then overwrites every mutable field
// with the values of target. The result is not checked for conflicts.
// It returns the restored event and the pre-rollback snapshot.
func (en *Engine) Rollback(ctx context.Context, store Store, e event.Event, target event.Version, actingUserId int) (event.Event, event.Version, error) {
	if target.EventId != e.Id {
		return event.Event{}, event.Version{}, event.ErrVersionNotFound
	}
	snapshot, err := en.Snapshot(ctx, store, e, actingUserId)
	if err != nil {
		return event.Event{}, event.Version{}, err
	}

	restored := e.Fields
	for _, field := range event.MutableFields {
		restored.Assign(field, target.Fields)
	}

	updated, err := store.UpdateEventFields(ctx, e.Id, restored)
	if err != nil {
		return event.Event{}, event.Version{}, fmt.Errorf("failed to restore version %d: %w", target.Id, err)
	}
	return updated, snapshot, nil
}

// Changelog returns the versions of an event, newest first.
func (en *Engine) Changelog(ctx context.Context, store Store, eventId int) ([]event.Version, error) {
	return store.ListVersions(ctx, eventId)
}

// DiffVersions loads two versions of the same event and compares them.
func (en *Engine) DiffVersions(ctx context.Context, store Store, eventId int, firstId int, secondId int) (Diff, error) {
	first, err := store.GetVersion(ctx, eventId, firstId)
	if err != nil {
		return nil, err
	}
	second, err := store.GetVersion(ctx, eventId, secondId)
	if err != nil {
		return nil, err
	}
	return Compare(first.Fields, second.Fields), nil
}

// Change is one field that differs between two snapshots.
type Change struct {
	Field event.Field
	V1    any
	V2    any
}

// Diff lists changed fields in canonical field order. It encodes as a JSON
// object keyed by field name that keeps that order.
type Diff []Change

// Compare returns the fields whose values differ between a and b.
func Compare(a event.Fields, b event.Fields) Diff {
	diff := Diff{}
	for _, field := range event.MutableFields {
		if a.FieldEqual(field, b) {
			continue
		}
		diff = append(diff, Change{Field: field, V1: a.Value(field), V2: b.Value(field)})
	}
	return diff
}

func (d Diff) Empty() bool {
	return len(d) == 0
}

// Fields returns the names of the changed fields.
func (d Diff) Fields() []event.Field {
	fields := make([]event.Field, 0, len(d))
	for _, c := range d {
		fields = append(fields, c.Field)
	}
	return fields
}

type changeValues struct {
	V1 any `json:"v1"`
	V2 any `json:"v2"`
}

func (d Diff) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(c.Field))
		if err != nil {
			return nil, err
		}
		values, err := json.Marshal(changeValues{V1: c.V1, V2: c.V2})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(values)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
