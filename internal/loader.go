package internal

import (
	"context"

	"github.com/lychee-technology/crm"
	"golang.org/x/sync/errgroup"
)

// LoadSet selects which collections a view needs.
type LoadSet struct {
	Contacts   bool
	Deals      bool
	Activities bool
	Tasks      bool
}

// LoadAllSet requests every collection.
var LoadAllSet = LoadSet{Contacts: true, Deals: true, Activities: true, Tasks: true}

// Collections holds the full collections loaded for one view. Collections
// that were not requested are empty.
type Collections struct {
	Contacts   []crm.Contact
	Deals      []crm.Deal
	Activities []crm.Activity
	Tasks      []crm.Task
}

// LoadCollections fetches the requested collections in parallel. The first
// failure cancels the outstanding loads and is the only error returned.
func LoadCollections(ctx context.Context, svc *crm.Services, want LoadSet) (*Collections, error) {
	out := &Collections{
		Contacts:   []crm.Contact{},
		Deals:      []crm.Deal{},
		Activities: []crm.Activity{},
		Tasks:      []crm.Task{},
	}
	g, gctx := errgroup.WithContext(ctx)
	if want.Contacts {
		g.Go(func() error {
			records, err := svc.Contacts.GetAll(gctx)
			out.Contacts = records
			return err
		})
	}
	if want.Deals {
		g.Go(func() error {
			records, err := svc.Deals.GetAll(gctx)
			out.Deals = records
			return err
		})
	}
	if want.Activities {
		g.Go(func() error {
			records, err := svc.Activities.GetAll(gctx)
			out.Activities = records
			return err
		})
	}
	if want.Tasks {
		g.Go(func() error {
			records, err := svc.Tasks.GetAll(gctx)
			out.Tasks = records
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return &Collections{
			Contacts:   []crm.Contact{},
			Deals:      []crm.Deal{},
			Activities: []crm.Activity{},
			Tasks:      []crm.Task{},
		}, err
	}
	return out, nil
}
