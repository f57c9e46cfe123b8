package internal

import (
	"time"

	"github.com/lychee-technology/crm"
)

// EntityKind describes how the generic stores and services handle one record
// type: id access, timestamping, patch merging and the record API codec.
type EntityKind[T any, P any] struct {
	Name crm.EntityKind

	id    func(T) int64
	setID func(*T, int64)
	// stamp sets audit timestamps. created is true on insert.
	stamp func(r *T, now time.Time, created bool)
	apply func(P, *T)
	// clone deep-copies pointer fields. Nil means a plain copy is enough.
	clone func(T) T

	remote remoteCodec[T]
}

func (k EntityKind[T, P]) ID(r T) int64 {
	return k.id(r)
}

// copy returns a record that shares no memory with r.
func (k EntityKind[T, P]) copy(r T) T {
	if k.clone == nil {
		return r
	}
	return k.clone(r)
}

func noStamp[T any](*T, time.Time, bool) {}

// ContactKind describes contacts.
var ContactKind = EntityKind[crm.Contact, crm.ContactPatch]{
	Name:  crm.EntityContact,
	id:    func(c crm.Contact) int64 { return c.ID },
	setID: func(c *crm.Contact, id int64) { c.ID = id },
	stamp: func(c *crm.Contact, now time.Time, created bool) {
		if created {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
	},
	apply:  func(p crm.ContactPatch, c *crm.Contact) { p.Apply(c) },
	remote: contactCodec,
}

// DealKind describes deals.
var DealKind = EntityKind[crm.Deal, crm.DealPatch]{
	Name:  crm.EntityDeal,
	id:    func(d crm.Deal) int64 { return d.ID },
	setID: func(d *crm.Deal, id int64) { d.ID = id },
	stamp: func(d *crm.Deal, now time.Time, created bool) {
		if created {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
	},
	apply:  func(p crm.DealPatch, d *crm.Deal) { p.Apply(d) },
	remote: dealCodec,
}

// ActivityKind describes activities. Activities carry no audit timestamps.
var ActivityKind = EntityKind[crm.Activity, crm.ActivityPatch]{
	Name:  crm.EntityActivity,
	id:    func(a crm.Activity) int64 { return a.ID },
	setID: func(a *crm.Activity, id int64) { a.ID = id },
	stamp: noStamp[crm.Activity],
	apply: func(p crm.ActivityPatch, a *crm.Activity) { p.Apply(a) },
	clone: func(a crm.Activity) crm.Activity {
		if a.Duration != nil {
			d := *a.Duration
			a.Duration = &d
		}
		return a
	},
	remote: activityCodec,
}

// TaskKind describes tasks. Tasks carry no audit timestamps.
var TaskKind = EntityKind[crm.Task, crm.TaskPatch]{
	Name:   crm.EntityTask,
	id:     func(t crm.Task) int64 { return t.ID },
	setID:  func(t *crm.Task, id int64) { t.ID = id },
	stamp:  noStamp[crm.Task],
	apply:  func(p crm.TaskPatch, t *crm.Task) { p.Apply(t) },
	remote: taskCodec,
}
